package scoring

import (
	"errors"
	"fmt"
	"math"
)

// weightTolerance is the allowed deviation of a weight group's sum from 1.
const weightTolerance = 1e-9

// Weights are the per-dimension contributions to the overall score.
type Weights struct {
	Pitch        float64 `yaml:"pitch"`
	Formants     float64 `yaml:"formants"`
	Intensity    float64 `yaml:"intensity"`
	Duration     float64 `yaml:"duration"`
	VoiceQuality float64 `yaml:"voice_quality"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Pitch + w.Formants + w.Intensity + w.Duration + w.VoiceQuality
}

// Of returns the weight of dimension d.
func (w Weights) Of(d Dimension) float64 {
	switch d {
	case DimPitch:
		return w.Pitch
	case DimFormants:
		return w.Formants
	case DimIntensity:
		return w.Intensity
	case DimDuration:
		return w.Duration
	case DimVoiceQuality:
		return w.VoiceQuality
	}
	return 0
}

// PitchCalibration tunes the pitch scorer.
type PitchCalibration struct {
	ContourSigma  float64 `yaml:"contour_sigma"`
	MeanSigma     float64 `yaml:"mean_sigma"`
	RangeSigma    float64 `yaml:"range_sigma"`
	ContourWeight float64 `yaml:"contour_weight"`
	MeanWeight    float64 `yaml:"mean_weight"`
	RangeWeight   float64 `yaml:"range_weight"`
}

// FormantCalibration tunes the formant scorer. A single sigma applies to
// both the DTW distance and the mean difference.
type FormantCalibration struct {
	Sigma    float64 `yaml:"sigma"`
	F1Weight float64 `yaml:"f1_weight"`
	F2Weight float64 `yaml:"f2_weight"`
	F3Weight float64 `yaml:"f3_weight"`
}

// IntensityCalibration tunes the intensity scorer.
type IntensityCalibration struct {
	ContourSigma  float64 `yaml:"contour_sigma"`
	MeanSigma     float64 `yaml:"mean_sigma"`
	ContourWeight float64 `yaml:"contour_weight"`
	MeanWeight    float64 `yaml:"mean_weight"`
}

// DurationCalibration tunes the duration scorer.
type DurationCalibration struct {
	PaceSigma    float64 `yaml:"pace_sigma"`
	VoicedSigma  float64 `yaml:"voiced_sigma"`
	PaceWeight   float64 `yaml:"pace_weight"`
	VoicedWeight float64 `yaml:"voiced_weight"`
}

// VoiceQualityCalibration tunes the voice quality scorer.
type VoiceQualityCalibration struct {
	JitterSigma   float64 `yaml:"jitter_sigma"`
	ShimmerSigma  float64 `yaml:"shimmer_sigma"`
	JitterWeight  float64 `yaml:"jitter_weight"`
	ShimmerWeight float64 `yaml:"shimmer_weight"`
}

// Calibration holds every tunable constant of the scoring stage. It is read
// only once handed to a scorer.
type Calibration struct {
	Weights      Weights                 `yaml:"weights"`
	Pitch        PitchCalibration        `yaml:"pitch"`
	Formants     FormantCalibration      `yaml:"formants"`
	Intensity    IntensityCalibration    `yaml:"intensity"`
	Duration     DurationCalibration     `yaml:"duration"`
	VoiceQuality VoiceQualityCalibration `yaml:"voice_quality"`

	// NeutralScore is reported for a component whose data is missing.
	NeutralScore float64 `yaml:"neutral_score"`
}

// DefaultCalibration returns the production calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		Weights: Weights{
			Pitch:        0.20,
			Formants:     0.35,
			Intensity:    0.15,
			Duration:     0.15,
			VoiceQuality: 0.15,
		},
		Pitch: PitchCalibration{
			ContourSigma:  50,
			MeanSigma:     30,
			RangeSigma:    40,
			ContourWeight: 0.5,
			MeanWeight:    0.3,
			RangeWeight:   0.2,
		},
		Formants: FormantCalibration{
			Sigma:    100,
			F1Weight: 0.4,
			F2Weight: 0.4,
			F3Weight: 0.2,
		},
		Intensity: IntensityCalibration{
			ContourSigma:  10,
			MeanSigma:     5,
			ContourWeight: 0.6,
			MeanWeight:    0.4,
		},
		Duration: DurationCalibration{
			PaceSigma:    0.3,
			VoicedSigma:  0.2,
			PaceWeight:   0.6,
			VoicedWeight: 0.4,
		},
		VoiceQuality: VoiceQualityCalibration{
			JitterSigma:   0.01,
			ShimmerSigma:  0.05,
			JitterWeight:  0.5,
			ShimmerWeight: 0.5,
		},
		NeutralScore: 50,
	}
}

// Validate checks that every sigma is positive and finite, that every weight
// is non-negative, and that each weight group sums to 1. All problems are
// returned joined.
func (c Calibration) Validate() error {
	var errs []error

	sigma := func(name string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("calibration: %s must be a positive finite number, got %v", name, v))
		}
	}
	group := func(name string, ws ...float64) {
		var sum float64
		for _, w := range ws {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				errs = append(errs, fmt.Errorf("calibration: %s weights must be finite and non-negative, got %v", name, ws))
				return
			}
			sum += w
		}
		if math.Abs(sum-1) > weightTolerance {
			errs = append(errs, fmt.Errorf("calibration: %s weights must sum to 1, got %v", name, sum))
		}
	}

	w := c.Weights
	group("dimension", w.Pitch, w.Formants, w.Intensity, w.Duration, w.VoiceQuality)

	sigma("pitch.contour_sigma", c.Pitch.ContourSigma)
	sigma("pitch.mean_sigma", c.Pitch.MeanSigma)
	sigma("pitch.range_sigma", c.Pitch.RangeSigma)
	group("pitch", c.Pitch.ContourWeight, c.Pitch.MeanWeight, c.Pitch.RangeWeight)

	sigma("formants.sigma", c.Formants.Sigma)
	group("formants", c.Formants.F1Weight, c.Formants.F2Weight, c.Formants.F3Weight)

	sigma("intensity.contour_sigma", c.Intensity.ContourSigma)
	sigma("intensity.mean_sigma", c.Intensity.MeanSigma)
	group("intensity", c.Intensity.ContourWeight, c.Intensity.MeanWeight)

	sigma("duration.pace_sigma", c.Duration.PaceSigma)
	sigma("duration.voiced_sigma", c.Duration.VoicedSigma)
	group("duration", c.Duration.PaceWeight, c.Duration.VoicedWeight)

	sigma("voice_quality.jitter_sigma", c.VoiceQuality.JitterSigma)
	sigma("voice_quality.shimmer_sigma", c.VoiceQuality.ShimmerSigma)
	group("voice_quality", c.VoiceQuality.JitterWeight, c.VoiceQuality.ShimmerWeight)

	if c.NeutralScore < 0 || c.NeutralScore > 100 || math.IsNaN(c.NeutralScore) {
		errs = append(errs, fmt.Errorf("calibration: neutral_score must be in [0, 100], got %v", c.NeutralScore))
	}

	return errors.Join(errs...)
}
