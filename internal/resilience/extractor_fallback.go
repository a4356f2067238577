package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/speakingbuddy/internal/observe"
	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

// namedExtractor keeps the entry name next to the provider for metrics.
type namedExtractor struct {
	name string
	p    extractor.Provider
}

// ExtractorFallback implements [extractor.Provider] with automatic failover
// across several extraction backends, each behind its own circuit breaker.
//
// [extractor.ErrUnanalyzable] is a verdict about the signal rather than the
// backend: it is returned immediately, never fails over and never counts
// towards opening a breaker.
type ExtractorFallback struct {
	group   *FallbackGroup[namedExtractor]
	metrics *observe.Metrics
}

var _ extractor.Provider = (*ExtractorFallback)(nil)

// ExtractorOption is a functional option for [NewExtractorFallback].
type ExtractorOption func(*ExtractorFallback)

// WithMetrics records a request (and error) counter per backend call.
func WithMetrics(m *observe.Metrics) ExtractorOption {
	return func(f *ExtractorFallback) { f.metrics = m }
}

// NewExtractorFallback creates an [ExtractorFallback] with primary as the
// preferred backend.
func NewExtractorFallback(primary extractor.Provider, primaryName string, cfg CircuitBreakerConfig, opts ...ExtractorOption) *ExtractorFallback {
	f := &ExtractorFallback{
		group: NewFallbackGroup(namedExtractor{name: primaryName, p: primary}, primaryName, FallbackConfig{
			CircuitBreaker: cfg,
			Permanent:      isVerdict,
		}),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AddFallback registers an additional extraction backend.
func (f *ExtractorFallback) AddFallback(name string, p extractor.Provider) {
	f.group.AddFallback(name, namedExtractor{name: name, p: p})
}

// Backends returns the backend names in failover order.
func (f *ExtractorFallback) Backends() []string { return f.group.Names() }

// States returns the circuit breaker state of every backend.
func (f *ExtractorFallback) States() map[string]State { return f.group.States() }

// Extract runs extraction against the first healthy backend.
func (f *ExtractorFallback) Extract(ctx context.Context, sig audio.Signal) (*features.Bundle, error) {
	return ExecuteWithResult(ctx, f.group, func(e namedExtractor) (*features.Bundle, error) {
		b, err := e.p.Extract(ctx, sig)
		f.record(ctx, e.name, err)
		return b, err
	})
}

// Ready reports nil when at least one backend's breaker is not open.
func (f *ExtractorFallback) Ready(context.Context) error {
	for _, st := range f.group.States() {
		if st != StateOpen {
			return nil
		}
	}
	return errors.New("resilience: every extractor circuit is open")
}

func (f *ExtractorFallback) record(ctx context.Context, name string, err error) {
	if f.metrics == nil {
		return
	}
	switch {
	case err == nil:
		f.metrics.RecordProviderRequest(ctx, name, "ok")
	case isVerdict(err):
		f.metrics.RecordProviderRequest(ctx, name, "unanalyzable")
	default:
		f.metrics.RecordProviderRequest(ctx, name, "error")
		f.metrics.RecordProviderError(ctx, name)
	}
}

func isVerdict(err error) bool {
	return errors.Is(err, extractor.ErrUnanalyzable)
}
