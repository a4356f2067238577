package audio

import (
	"encoding/binary"
	"fmt"
)

// PCM16ToFloat converts 16-bit signed little-endian PCM audio to float64
// samples normalised to the range [-1.0, 1.0]. Any trailing odd byte is
// silently ignored.
func PCM16ToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	samples := make([]float64, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float64(sample) / 32768.0
	}
	return samples
}

// FloatToPCM16 converts float samples in [-1.0, 1.0] to 16-bit signed
// little-endian PCM. Out-of-range samples are clamped.
func FloatToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Downmix averages interleaved multi-channel samples into a single channel.
// If channels is 1 (or less) a copy of the input is returned. A trailing
// partial frame is dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, a copy of the input is returned.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float64, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ToMono converts interleaved samples of the given format into a mono
// [Signal] at dstRate. Conversion order: downmix first, then resample, so the
// interpolation only runs over one channel.
func ToMono(interleaved []float64, src Format, dstRate int) (Signal, error) {
	if src.Channels <= 0 {
		return Signal{}, fmt.Errorf("audio: invalid channel count %d", src.Channels)
	}
	if src.SampleRate <= 0 {
		return Signal{}, fmt.Errorf("audio: invalid sample rate %d", src.SampleRate)
	}
	mono := Downmix(interleaved, src.Channels)
	return Signal{
		Samples:    Resample(mono, src.SampleRate, dstRate),
		SampleRate: dstRate,
	}, nil
}

// FormatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func FormatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
