package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
)

// ErrFFmpegMissing is returned when the ffmpeg binary cannot be located.
var ErrFFmpegMissing = errors.New("decode: ffmpeg binary not found")

// FFmpeg decodes any container ffmpeg understands by running the binary as a
// subprocess. The upload is written to a private temporary directory that is
// removed before Decode returns; decoded audio is read back from stdout as
// mono 16-bit PCM at [FFmpeg.SampleRate].
type FFmpeg struct {
	// Path is the ffmpeg executable. Empty means "ffmpeg" resolved via PATH.
	Path string

	// SampleRate is the output rate requested from ffmpeg.
	SampleRate int
}

var _ Decoder = (*FFmpeg)(nil)

// NewFFmpeg returns an FFmpeg decoder for the given binary path that outputs
// audio at [audio.CanonicalSampleRate].
func NewFFmpeg(path string) *FFmpeg {
	return &FFmpeg{Path: path, SampleRate: audio.CanonicalSampleRate}
}

// Name implements [Decoder].
func (f *FFmpeg) Name() string { return "ffmpeg" }

// Available reports whether the configured binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.binary())
	return err == nil
}

func (f *FFmpeg) binary() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

// Decode implements [Decoder].
func (f *FFmpeg) Decode(ctx context.Context, data []byte) (PCM, error) {
	bin, err := exec.LookPath(f.binary())
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %s", ErrFFmpegMissing, f.binary())
	}

	rate := f.SampleRate
	if rate <= 0 {
		rate = audio.CanonicalSampleRate
	}

	dir, err := os.MkdirTemp("", "speakingbuddy-decode-*")
	if err != nil {
		return PCM{}, fmt.Errorf("decode: ffmpeg: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "upload")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return PCM{}, fmt.Errorf("decode: ffmpeg: write input: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", in,
		"-vn",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PCM{}, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return PCM{}, fmt.Errorf("decode: ffmpeg: %s", msg)
	}
	if stdout.Len() < 2 {
		return PCM{}, errors.New("decode: ffmpeg: no audio frames")
	}

	return PCM{
		Samples: audio.PCM16ToFloat(stdout.Bytes()),
		Format:  audio.Format{SampleRate: rate, Channels: 1},
	}, nil
}
