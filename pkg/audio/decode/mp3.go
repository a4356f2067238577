package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
)

// MP3 decodes MPEG-1/2 layer III streams. The underlying decoder always
// produces 16-bit stereo, so mono sources come back with both channels equal.
type MP3 struct{}

var _ Decoder = MP3{}

// Name implements [Decoder].
func (MP3) Name() string { return "mp3" }

// Decode implements [Decoder].
func (MP3) Decode(ctx context.Context, data []byte) (PCM, error) {
	if err := ctx.Err(); err != nil {
		return PCM{}, err
	}

	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decode: mp3: %w", err)
	}

	pcm, err := io.ReadAll(&ctxReader{ctx: ctx, r: d})
	if err != nil {
		return PCM{}, fmt.Errorf("decode: mp3: read samples: %w", err)
	}
	if len(pcm) < 4 {
		return PCM{}, errors.New("decode: mp3: no audio frames")
	}

	return PCM{
		Samples: audio.PCM16ToFloat(pcm),
		Format:  audio.Format{SampleRate: d.SampleRate(), Channels: 2},
	}, nil
}

// ctxReader stops a long read loop once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
