package audio

import "math"

// RMS returns the root-mean-square amplitude of samples. Returns 0 for an
// empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS returns the loudness of samples in decibels relative to full scale.
// Full scale is an amplitude of 1.0. A silent (or empty) signal has no
// defined level and yields -Inf.
func DBFS(samples []float64) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// DBToAmplitude converts a dBFS value to a linear amplitude ratio.
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// ApplyGain returns samples scaled by gainDB decibels. Results are clipped to
// [-1.0, 1.0].
func ApplyGain(samples []float64, gainDB float64) []float64 {
	factor := DBToAmplitude(gainDB)
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = clip(v * factor)
	}
	return out
}

// NormalizeRMS returns a copy of s whose RMS loudness equals targetDBFS.
// When s is fully silent its loudness is undefined and the copy is returned
// without gain.
func NormalizeRMS(s Signal, targetDBFS float64) Signal {
	current := DBFS(s.Samples)
	if math.IsInf(current, -1) || math.IsNaN(current) {
		return s.Clone()
	}
	return Signal{
		Samples:    ApplyGain(s.Samples, targetDBFS-current),
		SampleRate: s.SampleRate,
	}
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
