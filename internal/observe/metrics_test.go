package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data point whose attribute key equals value.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"speakingbuddy.assess.duration", m.AssessDuration},
		{"speakingbuddy.normalize.duration", m.NormalizeDuration},
		{"speakingbuddy.extract.duration", m.ExtractDuration},
		{"speakingbuddy.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordAssessment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAssessment(ctx, "")
	m.RecordAssessment(ctx, "")
	m.RecordAssessment(ctx, "decode")

	rm := collect(t, reader)
	if got, ok := sumByAttr(t, rm, "speakingbuddy.assessments", "status", "ok"); !ok || got != 2 {
		t.Errorf("ok assessments = %d (found=%v), want 2", got, ok)
	}
	if got, ok := sumByAttr(t, rm, "speakingbuddy.assessments", "status", "error"); !ok || got != 1 {
		t.Errorf("failed assessments = %d (found=%v), want 1", got, ok)
	}
	if got, ok := sumByAttr(t, rm, "speakingbuddy.assess.errors", "kind", "decode"); !ok || got != 1 {
		t.Errorf("decode errors = %d (found=%v), want 1", got, ok)
	}
}

func TestRecordScore(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordScore(ctx, 72.5, map[string]float64{"pitch": 60, "formants": 80})

	rm := collect(t, reader)
	overall := findMetric(rm, "speakingbuddy.score.overall")
	if overall == nil {
		t.Fatal("overall score metric not found")
	}
	hist, ok := overall.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 72.5 {
		t.Errorf("overall score histogram = %+v, want one sample of 72.5", overall.Data)
	}

	dims := findMetric(rm, "speakingbuddy.score.dimension")
	if dims == nil {
		t.Fatal("dimension score metric not found")
	}
	dh, ok := dims.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("dimension metric is not a histogram")
	}
	if len(dh.DataPoints) != 2 {
		t.Errorf("dimension data points = %d, want 2", len(dh.DataPoints))
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "remote", "ok")
	m.RecordProviderRequest(ctx, "remote", "error")
	m.RecordProviderError(ctx, "remote")
	m.RecordInsufficientData(ctx, "pitch")

	rm := collect(t, reader)
	if got, ok := sumByAttr(t, rm, "speakingbuddy.provider.requests", "status", "ok"); !ok || got != 1 {
		t.Errorf("ok requests = %d (found=%v), want 1", got, ok)
	}
	if got, ok := sumByAttr(t, rm, "speakingbuddy.provider.errors", "provider", "remote"); !ok || got != 1 {
		t.Errorf("provider errors = %d (found=%v), want 1", got, ok)
	}
	if got, ok := sumByAttr(t, rm, "speakingbuddy.insufficient_data", "dimension", "pitch"); !ok || got != 1 {
		t.Errorf("insufficient data = %d (found=%v), want 1", got, ok)
	}
}

func TestActiveAssessmentsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveAssessments.Add(ctx, 1)
	m.ActiveAssessments.Add(ctx, 1)
	m.ActiveAssessments.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "speakingbuddy.active_assessments")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("gauge has no data")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active assessments = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
