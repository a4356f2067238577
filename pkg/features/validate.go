package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is wrapped by every error returned from [Bundle.Validate].
var ErrInvalid = errors.New("features: invalid bundle")

// Validate checks that every numeric field of b is finite, that jitter and
// shimmer are non-negative and that the voiced fraction lies in [0, 1]. All
// violations are reported together.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalid)
	}
	var errs []error

	errs = checkTrack(errs, "pitch", b.Pitch)
	errs = checkTrack(errs, "intensity", b.Intensity)
	for n := 1; n <= 3; n++ {
		f := b.Formants.Index(n)
		name := fmt.Sprintf("formants.f%d", n)
		errs = checkFinite(errs, name+".mean", f.Mean)
		errs = checkFinite(errs, name+".std", f.Std)
		errs = checkSeries(errs, name+".values", f.Values)
	}

	errs = checkFinite(errs, "duration.total_seconds", b.Duration.TotalSeconds)
	if b.Duration.TotalSeconds < 0 {
		errs = append(errs, fmt.Errorf("duration.total_seconds: negative value %v", b.Duration.TotalSeconds))
	}
	errs = checkFinite(errs, "duration.voiced_fraction", b.Duration.VoicedFraction)
	if vf := b.Duration.VoicedFraction; vf < 0 || vf > 1 {
		errs = append(errs, fmt.Errorf("duration.voiced_fraction: %v outside [0, 1]", vf))
	}

	errs = checkFinite(errs, "voice_quality.jitter", b.VoiceQuality.Jitter)
	errs = checkFinite(errs, "voice_quality.shimmer", b.VoiceQuality.Shimmer)
	if b.VoiceQuality.Jitter < 0 {
		errs = append(errs, fmt.Errorf("voice_quality.jitter: negative value %v", b.VoiceQuality.Jitter))
	}
	if b.VoiceQuality.Shimmer < 0 {
		errs = append(errs, fmt.Errorf("voice_quality.shimmer: negative value %v", b.VoiceQuality.Shimmer))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkTrack(errs []error, name string, t Track) []error {
	errs = checkFinite(errs, name+".mean", t.Mean)
	errs = checkFinite(errs, name+".std", t.Std)
	errs = checkFinite(errs, name+".min", t.Min)
	errs = checkFinite(errs, name+".max", t.Max)
	return checkSeries(errs, name+".values", t.Values)
}

func checkFinite(errs []error, name string, v float64) []error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		errs = append(errs, fmt.Errorf("%s: non-finite value %v", name, v))
	}
	return errs
}

func checkSeries(errs []error, name string, values []float64) []error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			// One report per series is enough to locate the problem.
			return append(errs, fmt.Errorf("%s[%d]: non-finite value %v", name, i, v))
		}
	}
	return errs
}
