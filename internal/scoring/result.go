package scoring

// Dimension names one of the five scored acoustic aspects.
type Dimension string

const (
	DimPitch        Dimension = "pitch"
	DimFormants     Dimension = "formants"
	DimIntensity    Dimension = "intensity"
	DimDuration     Dimension = "duration"
	DimVoiceQuality Dimension = "voice_quality"
)

// Dimensions lists every dimension in reporting order.
var Dimensions = []Dimension{DimPitch, DimFormants, DimIntensity, DimDuration, DimVoiceQuality}

// Breakdown holds one sub-score in [0, 100] per dimension, rounded to one
// decimal.
type Breakdown struct {
	Pitch        float64 `json:"pitch"`
	Formants     float64 `json:"formants"`
	Intensity    float64 `json:"intensity"`
	Duration     float64 `json:"duration"`
	VoiceQuality float64 `json:"voice_quality"`
}

// Of returns the sub-score of dimension d.
func (b Breakdown) Of(d Dimension) float64 {
	switch d {
	case DimPitch:
		return b.Pitch
	case DimFormants:
		return b.Formants
	case DimIntensity:
		return b.Intensity
	case DimDuration:
		return b.Duration
	case DimVoiceQuality:
		return b.VoiceQuality
	}
	return 0
}

// PitchDetail explains the pitch sub-score.
type PitchDetail struct {
	// Insufficient is set when either pitch track was empty; all other
	// fields are then zero.
	Insufficient bool    `json:"insufficient,omitempty"`
	ContourScore float64 `json:"contour_score"`
	MeanScore    float64 `json:"mean_score"`
	RangeScore   float64 `json:"range_score"`
	DTWDistance  float64 `json:"dtw_distance"`
	MeanDiffHz   float64 `json:"mean_diff_hz"`
}

// FormantScore is the similarity of a single formant.
type FormantScore struct {
	Score float64 `json:"score"`

	// MeanFallback is set when one of the tracks was empty and the score
	// was derived from the means instead of the contours.
	MeanFallback bool `json:"mean_fallback,omitempty"`
}

// FormantDetail explains the formant sub-score.
type FormantDetail struct {
	F1 FormantScore `json:"f1"`
	F2 FormantScore `json:"f2"`
	F3 FormantScore `json:"f3"`
}

// IntensityDetail explains the intensity sub-score.
type IntensityDetail struct {
	ContourScore float64 `json:"contour_score"`
	MeanScore    float64 `json:"mean_score"`

	// InsufficientContour is set when either intensity track was empty and
	// the contour component fell back to the neutral score.
	InsufficientContour bool `json:"insufficient_contour,omitempty"`
}

// DurationDetail explains the duration sub-score.
type DurationDetail struct {
	// Ratio is user/reference total duration, rounded to two decimals. Only
	// meaningful when HasRatio is set.
	Ratio               float64 `json:"ratio,omitempty"`
	HasRatio            bool    `json:"has_ratio"`
	PaceScore           float64 `json:"pace_score"`
	VoicedFractionScore float64 `json:"voiced_fraction_score"`
}

// VoiceQualityDetail explains the voice quality sub-score.
type VoiceQualityDetail struct {
	JitterScore  float64 `json:"jitter_score"`
	ShimmerScore float64 `json:"shimmer_score"`
}

// Details groups the diagnostic record of every dimension.
type Details struct {
	Pitch        PitchDetail        `json:"pitch"`
	Formants     FormantDetail      `json:"formants"`
	Intensity    IntensityDetail    `json:"intensity"`
	Duration     DurationDetail     `json:"duration"`
	VoiceQuality VoiceQualityDetail `json:"voice_quality"`
}

// Result is the outcome of comparing a learner bundle against a reference
// bundle. It is immutable once produced.
type Result struct {
	// Overall is the weighted score in [0, 100], rounded to one decimal.
	Overall   float64   `json:"overall_score"`
	Breakdown Breakdown `json:"breakdown"`
	Details   Details   `json:"details"`
}

// InsufficientData lists the dimensions where a component degraded to the
// neutral score because a sequence or reference value was missing. The
// result is still valid; callers may surface this as a warning.
func (r Result) InsufficientData() []Dimension {
	var out []Dimension
	if r.Details.Pitch.Insufficient {
		out = append(out, DimPitch)
	}
	if r.Details.Intensity.InsufficientContour {
		out = append(out, DimIntensity)
	}
	if !r.Details.Duration.HasRatio {
		out = append(out, DimDuration)
	}
	return out
}
