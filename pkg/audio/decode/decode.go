// Package decode turns raw upload bytes into interleaved float samples.
//
// Three decoders are provided: [WAV] for RIFF/WAVE PCM of any bit depth,
// [MP3] for MPEG-1/2 layer III streams, and [FFmpeg] which shells out to the
// ffmpeg binary for container formats browsers typically record (WebM, Ogg,
// MP4/M4A). [Chain] selects the right one with [Detect] and falls back to
// ffmpeg when a native decoder reports [ErrUnsupported].
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
)

// ErrUnsupported is returned when a decoder recognises the container but not
// the encoding inside it, or when no decoder can handle the input at all.
var ErrUnsupported = errors.New("decode: unsupported audio encoding")

// PCM holds decoded samples in [-1.0, 1.0], interleaved by channel.
type PCM struct {
	Samples []float64
	Format  audio.Format
}

// Frames returns the number of sample frames (samples per channel).
func (p PCM) Frames() int {
	if p.Format.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Format.Channels
}

// Decoder converts an encoded audio file held in memory into PCM.
//
// Implementations must be safe for concurrent use.
type Decoder interface {
	// Name identifies the decoder in logs and errors (e.g., "wav").
	Name() string

	// Decode parses data and returns interleaved samples. The returned PCM
	// must contain at least one frame.
	Decode(ctx context.Context, data []byte) (PCM, error)
}

// Kind is the container format recognised by [Detect].
type Kind int

const (
	KindUnknown Kind = iota
	KindWAV
	KindMP3
	KindWebM
	KindOgg
	KindMP4
	KindFLAC
)

// String returns the lower-case short name of the kind.
func (k Kind) String() string {
	switch k {
	case KindWAV:
		return "wav"
	case KindMP3:
		return "mp3"
	case KindWebM:
		return "webm"
	case KindOgg:
		return "ogg"
	case KindMP4:
		return "mp4"
	case KindFLAC:
		return "flac"
	default:
		return "unknown"
	}
}

// Detect identifies the container of data. Magic bytes win; when they are
// inconclusive the hint is consulted. The hint may be a file name
// ("upload.webm") or a MIME type ("audio/webm").
func Detect(data []byte, hint string) Kind {
	if k := sniff(data); k != KindUnknown {
		return k
	}
	return fromHint(hint)
}

func sniff(data []byte) Kind {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return KindWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return KindWebM
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return KindOgg
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return KindFLAC
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return KindMP4
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return KindMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return KindMP3
	}
	return KindUnknown
}

func fromHint(hint string) Kind {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return KindUnknown
	}
	if i := strings.Index(h, "/"); i >= 0 && !strings.Contains(h, ".") {
		h = h[i+1:]
	} else {
		h = strings.TrimPrefix(filepath.Ext(h), ".")
	}
	switch h {
	case "wav", "wave", "x-wav", "vnd.wave":
		return KindWAV
	case "mp3", "mpeg":
		return KindMP3
	case "webm", "weba":
		return KindWebM
	case "ogg", "oga", "opus":
		return KindOgg
	case "m4a", "mp4", "aac", "x-m4a":
		return KindMP4
	case "flac", "x-flac":
		return KindFLAC
	}
	return KindUnknown
}

// Chain dispatches to the decoder matching the detected container.
type Chain struct {
	wav    Decoder
	mp3    Decoder
	ffmpeg Decoder
}

// Option is a functional option for [NewChain].
type Option func(*Chain)

// WithFFmpeg sets the decoder used for non-native containers and as the
// fallback for unsupported WAV/MP3 encodings. Pass nil to disable it.
func WithFFmpeg(d Decoder) Option {
	return func(c *Chain) { c.ffmpeg = d }
}

// WithWAV overrides the WAV decoder.
func WithWAV(d Decoder) Option {
	return func(c *Chain) { c.wav = d }
}

// WithMP3 overrides the MP3 decoder.
func WithMP3(d Decoder) Option {
	return func(c *Chain) { c.mp3 = d }
}

// NewChain returns a Chain using the native WAV and MP3 decoders and an
// [FFmpeg] decoder found on PATH.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		wav:    WAV{},
		mp3:    MP3{},
		ffmpeg: NewFFmpeg(""),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Decode detects the container of data and decodes it.
func (c *Chain) Decode(ctx context.Context, data []byte, hint string) (PCM, error) {
	kind := Detect(data, hint)

	var primary Decoder
	switch kind {
	case KindWAV:
		primary = c.wav
	case KindMP3:
		primary = c.mp3
	default:
		primary = c.ffmpeg
	}
	if primary == nil {
		return PCM{}, fmt.Errorf("decode: %s: %w", kind, ErrUnsupported)
	}

	pcm, err := primary.Decode(ctx, data)
	if err == nil {
		return pcm, nil
	}
	if errors.Is(err, ErrUnsupported) && c.ffmpeg != nil && primary != c.ffmpeg {
		return c.ffmpeg.Decode(ctx, data)
	}
	return PCM{}, err
}
