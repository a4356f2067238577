package audio

import "math"

// Span is a half-open time range [StartMs, EndMs) within a [Signal].
type Span struct {
	StartMs int
	EndMs   int
}

// Length returns the span duration in milliseconds.
func (s Span) Length() int { return s.EndMs - s.StartMs }

// SilenceParams controls silence and non-silence detection.
type SilenceParams struct {
	// ThresholdDBFS is the loudness at or below which a window counts as
	// silent (e.g., -40).
	ThresholdDBFS float64

	// MinSilenceMs is the analysis window length. A silent range is only
	// reported if it is at least this long.
	MinSilenceMs int

	// SeekStepMs is the window hop. Zero means 1 ms.
	SeekStepMs int

	// MinSpanMs drops non-silent spans shorter than this. Zero keeps all.
	MinSpanMs int
}

// DefaultSilenceParams returns the detection settings used for learner
// uploads: -40 dBFS threshold, 200 ms window, 1 ms hop, 200 ms minimum span.
func DefaultSilenceParams() SilenceParams {
	return SilenceParams{
		ThresholdDBFS: -40,
		MinSilenceMs:  200,
		SeekStepMs:    1,
		MinSpanMs:     200,
	}
}

// DetectSilence returns the silent ranges of s in ascending order.
//
// A window of MinSilenceMs is slid across the signal in SeekStepMs hops and
// marked silent when its RMS is at or below ThresholdDBFS. Overlapping or
// touching silent windows are merged. Signals shorter than one window have no
// silent ranges.
func DetectSilence(s Signal, p SilenceParams) []Span {
	p = p.withDefaults()
	segLen := s.LengthMs()
	if segLen < p.MinSilenceMs || segLen == 0 {
		return nil
	}

	threshold := DBToAmplitude(p.ThresholdDBFS)
	prefix := squarePrefix(s.Samples)

	lastStart := segLen - p.MinSilenceMs
	var starts []int
	check := func(i int) {
		lo := s.msToIndex(i)
		hi := s.msToIndex(i + p.MinSilenceMs)
		if windowRMS(prefix, lo, hi) <= threshold {
			starts = append(starts, i)
		}
	}
	for i := 0; i <= lastStart; i += p.SeekStepMs {
		check(i)
	}
	if lastStart%p.SeekStepMs != 0 {
		check(lastStart)
	}
	if len(starts) == 0 {
		return nil
	}

	var ranges []Span
	prev := starts[0]
	rangeStart := prev
	for _, i := range starts[1:] {
		continuous := i == prev+p.SeekStepMs
		hasGap := i > prev+p.MinSilenceMs
		if !continuous && hasGap {
			ranges = append(ranges, Span{StartMs: rangeStart, EndMs: prev + p.MinSilenceMs})
			rangeStart = i
		}
		prev = i
	}
	ranges = append(ranges, Span{StartMs: rangeStart, EndMs: prev + p.MinSilenceMs})
	return ranges
}

// DetectNonSilent returns the non-silent spans of s in ascending order: the
// complement of [DetectSilence] within the signal, minus any span shorter
// than MinSpanMs. A fully silent signal yields no spans.
func DetectNonSilent(s Signal, p SilenceParams) []Span {
	p = p.withDefaults()
	segLen := s.LengthMs()
	silent := DetectSilence(s, p)

	var spans []Span
	switch {
	case len(silent) == 0:
		spans = []Span{{StartMs: 0, EndMs: segLen}}
	case silent[0].StartMs == 0 && silent[0].EndMs == segLen:
		return nil
	default:
		prevEnd := 0
		for _, r := range silent {
			spans = append(spans, Span{StartMs: prevEnd, EndMs: r.StartMs})
			prevEnd = r.EndMs
		}
		if prevEnd != segLen {
			spans = append(spans, Span{StartMs: prevEnd, EndMs: segLen})
		}
	}

	out := spans[:0]
	for _, sp := range spans {
		if sp.Length() <= 0 || sp.Length() < p.MinSpanMs {
			continue
		}
		out = append(out, sp)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (p SilenceParams) withDefaults() SilenceParams {
	if p.SeekStepMs <= 0 {
		p.SeekStepMs = 1
	}
	if p.MinSilenceMs <= 0 {
		p.MinSilenceMs = 1
	}
	return p
}

// squarePrefix returns prefix sums of squared samples so that the energy of
// any window is a single subtraction.
func squarePrefix(samples []float64) []float64 {
	prefix := make([]float64, len(samples)+1)
	for i, v := range samples {
		prefix[i+1] = prefix[i] + v*v
	}
	return prefix
}

func windowRMS(prefix []float64, lo, hi int) float64 {
	if hi <= lo {
		return 0
	}
	energy := prefix[hi] - prefix[lo]
	if energy < 0 {
		// Rounding in long prefix sums can go marginally negative.
		energy = 0
	}
	return math.Sqrt(energy / float64(hi-lo))
}
