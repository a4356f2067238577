package feedback

import (
	"errors"
	"fmt"
)

// Thresholds holds the cut-offs that decide which coaching messages fire.
type Thresholds struct {
	// DimensionWeak is the sub-score below which pitch, formants, intensity
	// and duration feedback is considered.
	DimensionWeak float64 `yaml:"dimension_weak"`

	// VoiceQualityWeak is the voice quality sub-score below which jitter and
	// shimmer feedback is considered.
	VoiceQualityWeak float64 `yaml:"voice_quality_weak"`

	// ComponentWeak marks a weak pitch contour or a weak single formant.
	ComponentWeak float64 `yaml:"component_weak"`

	// VoiceComponentWeak marks a weak jitter or shimmer score.
	VoiceComponentWeak float64 `yaml:"voice_component_weak"`

	// PitchMeanDiffHz is the mean pitch difference above which a
	// "too high/low" message is produced.
	PitchMeanDiffHz float64 `yaml:"pitch_mean_diff_hz"`

	// LoudnessMarginDB is how far the learner's mean intensity may deviate
	// from the reference before a "too soft/loud" message is produced.
	LoudnessMarginDB float64 `yaml:"loudness_margin_db"`

	// TooFastRatio and TooSlowRatio bound the acceptable user/reference
	// duration ratio.
	TooFastRatio float64 `yaml:"too_fast_ratio"`
	TooSlowRatio float64 `yaml:"too_slow_ratio"`

	// Overall score bands, highest first.
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Fair      float64 `yaml:"fair"`
	NeedsWork float64 `yaml:"needs_work"`

	// Encourage is the overall score from which the fallback suggestion is
	// encouragement rather than "listen again".
	Encourage float64 `yaml:"encourage"`
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DimensionWeak:      60,
		VoiceQualityWeak:   50,
		ComponentWeak:      50,
		VoiceComponentWeak: 40,
		PitchMeanDiffHz:    20,
		LoudnessMarginDB:   3,
		TooFastRatio:       0.7,
		TooSlowRatio:       1.4,
		Excellent:          85,
		Good:               70,
		Fair:               55,
		NeedsWork:          40,
		Encourage:          70,
	}
}

// Validate checks that the band edges are descending and the pace ratios
// form a non-empty interval. All problems are returned joined.
func (t Thresholds) Validate() error {
	var errs []error
	if !(t.Excellent >= t.Good && t.Good >= t.Fair && t.Fair >= t.NeedsWork) {
		errs = append(errs, fmt.Errorf("feedback: bands must be descending, got excellent=%v good=%v fair=%v needs_work=%v",
			t.Excellent, t.Good, t.Fair, t.NeedsWork))
	}
	if t.TooFastRatio <= 0 || t.TooSlowRatio <= t.TooFastRatio {
		errs = append(errs, fmt.Errorf("feedback: need 0 < too_fast_ratio < too_slow_ratio, got %v and %v",
			t.TooFastRatio, t.TooSlowRatio))
	}
	if t.PitchMeanDiffHz < 0 {
		errs = append(errs, fmt.Errorf("feedback: pitch_mean_diff_hz must be non-negative, got %v", t.PitchMeanDiffHz))
	}
	if t.LoudnessMarginDB < 0 {
		errs = append(errs, fmt.Errorf("feedback: loudness_margin_db must be non-negative, got %v", t.LoudnessMarginDB))
	}
	score := func(name string, v float64) {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("feedback: %s must be in [0, 100], got %v", name, v))
		}
	}
	score("dimension_weak", t.DimensionWeak)
	score("voice_quality_weak", t.VoiceQualityWeak)
	score("component_weak", t.ComponentWeak)
	score("voice_component_weak", t.VoiceComponentWeak)
	score("encourage", t.Encourage)
	return errors.Join(errs...)
}
