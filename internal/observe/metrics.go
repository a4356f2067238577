// Package observe provides application-wide observability primitives for
// SpeakingBuddy: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all SpeakingBuddy
// metrics.
const meterName = "github.com/MrWong99/speakingbuddy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// AssessDuration tracks end-to-end assessment latency.
	AssessDuration metric.Float64Histogram

	// NormalizeDuration tracks decoding and normalization of an upload.
	NormalizeDuration metric.Float64Histogram

	// ExtractDuration tracks feature extraction latency. Use with attribute:
	//   attribute.String("side", "user"|"reference")
	ExtractDuration metric.Float64Histogram

	// --- Score distributions ---

	// OverallScore records the overall score of each successful assessment.
	OverallScore metric.Float64Histogram

	// DimensionScore records sub-scores. Use with attribute:
	//   attribute.String("dimension", ...)
	DimensionScore metric.Float64Histogram

	// --- Counters ---

	// Assessments counts finished assessments. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Assessments metric.Int64Counter

	// AssessErrors counts failed assessments. Use with attribute:
	//   attribute.String("kind", ...)
	AssessErrors metric.Int64Counter

	// InsufficientData counts dimensions that fell back to neutral scores.
	// Use with attribute:
	//   attribute.String("dimension", ...)
	InsufficientData metric.Int64Counter

	// ProviderRequests counts extractor calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts extractor errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveAssessments tracks assessments currently in flight.
	ActiveAssessments metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// "route" (the mux pattern, or "unmatched") and "status_class" ("2xx"...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// assessment stages. Extraction over HTTP dominates, hence the long tail.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// scoreBuckets splits the 0-100 score range on the feedback band edges.
var scoreBuckets = []float64{10, 20, 30, 40, 55, 70, 85, 95, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AssessDuration, err = m.Float64Histogram("speakingbuddy.assess.duration",
		metric.WithDescription("End-to-end latency of a pronunciation assessment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NormalizeDuration, err = m.Float64Histogram("speakingbuddy.normalize.duration",
		metric.WithDescription("Latency of decoding and normalizing an upload."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractDuration, err = m.Float64Histogram("speakingbuddy.extract.duration",
		metric.WithDescription("Latency of acoustic feature extraction by side."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OverallScore, err = m.Float64Histogram("speakingbuddy.score.overall",
		metric.WithDescription("Distribution of overall pronunciation scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DimensionScore, err = m.Float64Histogram("speakingbuddy.score.dimension",
		metric.WithDescription("Distribution of per-dimension sub-scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Assessments, err = m.Int64Counter("speakingbuddy.assessments",
		metric.WithDescription("Total assessments by status."),
	); err != nil {
		return nil, err
	}
	if met.AssessErrors, err = m.Int64Counter("speakingbuddy.assess.errors",
		metric.WithDescription("Total failed assessments by error kind."),
	); err != nil {
		return nil, err
	}
	if met.InsufficientData, err = m.Int64Counter("speakingbuddy.insufficient_data",
		metric.WithDescription("Dimensions scored from neutral fallbacks, by dimension."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("speakingbuddy.provider.requests",
		metric.WithDescription("Total extractor requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("speakingbuddy.provider.errors",
		metric.WithDescription("Total extractor errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAssessments, err = m.Int64UpDownCounter("speakingbuddy.active_assessments",
		metric.WithDescription("Number of assessments currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakingbuddy.http.request.duration",
		metric.WithDescription("HTTP request latency by route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records an extractor request with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records an extractor error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordAssessment records the outcome of one assessment. kind is empty on
// success and names the error class otherwise.
func (m *Metrics) RecordAssessment(ctx context.Context, kind string) {
	status := "ok"
	if kind != "" {
		status = "error"
		m.AssessErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	m.Assessments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordScore records the overall score and every sub-score of a result.
// scores maps dimension names to sub-scores.
func (m *Metrics) RecordScore(ctx context.Context, overall float64, scores map[string]float64) {
	m.OverallScore.Record(ctx, overall)
	for dim, v := range scores {
		m.DimensionScore.Record(ctx, v, metric.WithAttributes(attribute.String("dimension", dim)))
	}
}

// RecordInsufficientData counts a dimension that degraded to a neutral score.
func (m *Metrics) RecordInsufficientData(ctx context.Context, dimension string) {
	m.InsufficientData.Add(ctx, 1,
		metric.WithAttributes(attribute.String("dimension", dimension)),
	)
}
