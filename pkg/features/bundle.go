// Package features defines the acoustic Feature Bundle produced by a feature
// extractor for one utterance, together with its JSON encoding and
// validation.
//
// A Bundle carries five groups of measurements: pitch (F0 track), the first
// three formants, intensity, duration and voice quality (jitter/shimmer).
// Missing data is represented by zeroed scalars and empty sequences, never by
// NaN.
package features

// Track is a time series with its summary statistics. Pitch values are in
// Hz over voiced frames only; intensity values are in dB.
type Track struct {
	Mean   float64   `json:"mean" yaml:"mean"`
	Std    float64   `json:"std" yaml:"std"`
	Min    float64   `json:"min" yaml:"min"`
	Max    float64   `json:"max" yaml:"max"`
	Values []float64 `json:"values" yaml:"values,flow"`
}

// Range returns Max - Min.
func (t Track) Range() float64 { return t.Max - t.Min }

// Empty reports whether the track has no values.
func (t Track) Empty() bool { return len(t.Values) == 0 }

// Formant is the track of a single formant frequency in Hz.
type Formant struct {
	Mean   float64   `json:"mean" yaml:"mean"`
	Std    float64   `json:"std" yaml:"std"`
	Values []float64 `json:"values" yaml:"values,flow"`
}

// Empty reports whether the formant has no values.
func (f Formant) Empty() bool { return len(f.Values) == 0 }

// Formants groups the first three formants.
type Formants struct {
	F1 Formant `json:"f1" yaml:"f1"`
	F2 Formant `json:"f2" yaml:"f2"`
	F3 Formant `json:"f3" yaml:"f3"`
}

// Index returns the formant with 1-based number n (1, 2 or 3). Any other n
// returns the zero Formant.
func (f Formants) Index(n int) Formant {
	switch n {
	case 1:
		return f.F1
	case 2:
		return f.F2
	case 3:
		return f.F3
	}
	return Formant{}
}

// Duration describes the timing of an utterance.
type Duration struct {
	// TotalSeconds is the clip length.
	TotalSeconds float64 `json:"total_seconds" yaml:"total_seconds"`

	// VoicedFraction is the share of analysis frames with a pitch, in [0, 1].
	VoicedFraction float64 `json:"voiced_fraction" yaml:"voiced_fraction"`
}

// VoiceQuality holds perturbation measures of the voice source.
type VoiceQuality struct {
	// Jitter is the local period-to-period frequency perturbation (ratio, >= 0).
	Jitter float64 `json:"jitter" yaml:"jitter"`

	// Shimmer is the local amplitude perturbation (ratio, >= 0).
	Shimmer float64 `json:"shimmer" yaml:"shimmer"`
}

// Bundle is the complete set of acoustic measurements for one utterance.
//
// Bundles are read-only once produced; use [Bundle.Clone] before modifying one
// that may be shared.
type Bundle struct {
	Pitch        Track        `json:"pitch" yaml:"pitch"`
	Formants     Formants     `json:"formants" yaml:"formants"`
	Intensity    Track        `json:"intensity" yaml:"intensity"`
	Duration     Duration     `json:"duration" yaml:"duration"`
	VoiceQuality VoiceQuality `json:"voice_quality" yaml:"voice_quality"`
}

// Clone returns a deep copy of b.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	out := *b
	out.Pitch.Values = cloneFloats(b.Pitch.Values)
	out.Intensity.Values = cloneFloats(b.Intensity.Values)
	out.Formants.F1.Values = cloneFloats(b.Formants.F1.Values)
	out.Formants.F2.Values = cloneFloats(b.Formants.F2.Values)
	out.Formants.F3.Values = cloneFloats(b.Formants.F3.Values)
	return &out
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
