package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV decodes RIFF/WAVE files carrying integer PCM at 8, 16, 24 or 32 bits
// and any channel count. IEEE float and compressed WAV payloads are reported
// as [ErrUnsupported].
type WAV struct{}

var _ Decoder = WAV{}

// Name implements [Decoder].
func (WAV) Name() string { return "wav" }

// Decode implements [Decoder].
func (WAV) Decode(ctx context.Context, data []byte) (PCM, error) {
	if err := ctx.Err(); err != nil {
		return PCM{}, err
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return PCM{}, fmt.Errorf("decode: wav: %w", err)
		}
		return PCM{}, errors.New("decode: wav: invalid file")
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return PCM{}, fmt.Errorf("decode: wav: format tag %d: %w", d.WavAudioFormat, ErrUnsupported)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode: wav: read samples: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return PCM{}, errors.New("decode: wav: no audio frames")
	}

	bitDepth := int(d.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth < 8 || bitDepth > 32 {
		return PCM{}, fmt.Errorf("decode: wav: bit depth %d: %w", bitDepth, ErrUnsupported)
	}

	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned with a 128 midpoint.
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128.0
		}
	} else {
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}

	return PCM{
		Samples: samples,
		Format: audio.Format{
			SampleRate: buf.Format.SampleRate,
			Channels:   buf.Format.NumChannels,
		},
	}, nil
}
