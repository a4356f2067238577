// Package audio holds the signal representation shared by the assessment
// pipeline together with the sample-level operations that act on it:
// PCM conversion, downmixing, resampling, loudness measurement and gain,
// non-silence detection and WAV encoding.
//
// All functions are pure. They never modify their input slices and always
// return freshly allocated output, so a [Signal] can be handed to several
// goroutines without copying.
package audio

import "time"

// CanonicalSampleRate is the sample rate every learner and reference clip is
// converted to before feature extraction.
const CanonicalSampleRate = 22050

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Signal is a single-channel sequence of samples in [-1.0, 1.0].
//
// A Signal is created per assessment request and discarded after feature
// extraction. Treat it as immutable once constructed.
type Signal struct {
	// Samples holds mono float samples normalised to [-1.0, 1.0].
	Samples []float64

	// SampleRate in Hz (e.g., 22050 for the canonical form).
	SampleRate int
}

// Len returns the number of samples.
func (s Signal) Len() int { return len(s.Samples) }

// Duration returns the playback length of the signal. A signal with a
// non-positive sample rate has zero duration.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Seconds returns the signal duration in fractional seconds.
func (s Signal) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Clone returns a deep copy of s.
func (s Signal) Clone() Signal {
	out := make([]float64, len(s.Samples))
	copy(out, s.Samples)
	return Signal{Samples: out, SampleRate: s.SampleRate}
}

// Slice returns the samples between start and end (in milliseconds) as a new
// Signal. Bounds are clamped to the signal length.
func (s Signal) Slice(startMs, endMs int) Signal {
	lo := s.msToIndex(startMs)
	hi := s.msToIndex(endMs)
	if hi < lo {
		hi = lo
	}
	out := make([]float64, hi-lo)
	copy(out, s.Samples[lo:hi])
	return Signal{Samples: out, SampleRate: s.SampleRate}
}

// LengthMs returns the signal length rounded down to whole milliseconds.
func (s Signal) LengthMs() int {
	if s.SampleRate <= 0 {
		return 0
	}
	return int(int64(len(s.Samples)) * 1000 / int64(s.SampleRate))
}

// msToIndex converts a millisecond offset into a clamped sample index.
func (s Signal) msToIndex(ms int) int {
	if ms <= 0 || s.SampleRate <= 0 {
		return 0
	}
	idx := int(int64(ms) * int64(s.SampleRate) / 1000)
	if idx > len(s.Samples) {
		return len(s.Samples)
	}
	return idx
}
