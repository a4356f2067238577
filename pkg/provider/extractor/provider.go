// Package extractor defines the Provider interface for acoustic feature
// extraction backends.
//
// A feature extractor turns a canonical mono [audio.Signal] into a
// [features.Bundle]: pitch track, first three formants, intensity contour,
// duration statistics and jitter/shimmer. The measurement algorithms live
// behind this interface; the assessment pipeline only consumes the bundle.
//
// Implementations must be safe for concurrent use. A single extractor is
// shared by every in-flight assessment and typically called twice per
// assessment (learner and reference) in parallel.
package extractor

import (
	"context"
	"errors"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// ErrUnanalyzable is returned when the signal itself cannot be analysed, for
// example because it is too short or contains no periodic segment at all.
// It is a verdict on the input, not a backend failure: callers must not retry
// it against another backend.
var ErrUnanalyzable = errors.New("extractor: signal cannot be analysed")

// Provider is the abstraction over any feature extraction backend.
type Provider interface {
	// Extract measures sig and returns a bundle whose numeric fields are all
	// finite. sig is not modified.
	//
	// Returns an error wrapping ErrUnanalyzable when the signal is degenerate,
	// or any other error when the backend fails or ctx is cancelled.
	Extract(ctx context.Context, sig audio.Signal) (*features.Bundle, error)
}
