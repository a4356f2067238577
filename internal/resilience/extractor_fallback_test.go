package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor/mock"
)

var testSignal = audio.Signal{Samples: make([]float64, 2205), SampleRate: audio.CanonicalSampleRate}

func TestExtractorFallback_Failover(t *testing.T) {
	primary := &mock.Provider{Err: errors.New("sidecar down")}
	secondary := &mock.Provider{Bundle: &features.Bundle{Duration: features.Duration{TotalSeconds: 0.8}}}

	f := NewExtractorFallback(primary, "primary", CircuitBreakerConfig{MaxFailures: 3})
	f.AddFallback("secondary", secondary)

	b, err := f.Extract(context.Background(), testSignal)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if b.Duration.TotalSeconds != 0.8 {
		t.Errorf("bundle from wrong backend: %+v", b.Duration)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestExtractorFallback_UnanalyzableIsFinal(t *testing.T) {
	primary := &mock.Provider{Err: extractor.ErrUnanalyzable}
	secondary := &mock.Provider{}

	f := NewExtractorFallback(primary, "primary", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	f.AddFallback("secondary", secondary)

	for range 3 {
		_, err := f.Extract(context.Background(), testSignal)
		if !errors.Is(err, extractor.ErrUnanalyzable) {
			t.Fatalf("err = %v, want ErrUnanalyzable", err)
		}
		if errors.Is(err, ErrAllFailed) {
			t.Fatalf("verdict was wrapped as a failover failure: %v", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if st := f.States()["primary"]; st != StateClosed {
		t.Errorf("primary breaker = %v, want closed", st)
	}
	if err := f.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestExtractorFallback_ReadyWhenAllOpen(t *testing.T) {
	down := &mock.Provider{Err: errors.New("down")}
	f := NewExtractorFallback(down, "only", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	_, err := f.Extract(context.Background(), testSignal)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if err := f.Ready(context.Background()); err == nil {
		t.Fatal("Ready should fail when every breaker is open")
	}
	if got := f.Backends(); len(got) != 1 || got[0] != "only" {
		t.Errorf("backends = %v", got)
	}
}
