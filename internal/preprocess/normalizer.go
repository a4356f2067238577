// Package preprocess turns raw learner uploads into canonical speech signals.
//
// A canonical signal is mono, at [audio.CanonicalSampleRate], RMS-normalized
// to the configured loudness, with leading and trailing silence removed and
// truncated to the first speech segment so that trailing noise or a second
// attempt does not skew the comparison.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/audio/decode"
)

// ErrEmptyAudio is returned when the upload contains no bytes.
var ErrEmptyAudio = errors.New("preprocess: empty audio")

// DecodeError reports that the upload could not be decoded into samples.
type DecodeError struct {
	// Hint is the format hint supplied by the caller, possibly empty.
	Hint string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("preprocess: decode audio: %v", e.Err)
	}
	return fmt.Sprintf("preprocess: decode audio (%s): %v", e.Hint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Config controls normalization. It maps to the audio section of the YAML
// configuration; zero fields take the defaults from [DefaultConfig].
type Config struct {
	SampleRate        int     `yaml:"sample_rate"`
	TargetDBFS        float64 `yaml:"target_dbfs"`
	SilenceThreshDBFS float64 `yaml:"silence_thresh_dbfs"`
	MinSilenceMs      int     `yaml:"min_silence_ms"`
	MinSpanMs         int     `yaml:"min_span_ms"`
	FFmpegPath        string  `yaml:"ffmpeg_path"`
}

// DefaultConfig returns the normalization settings used in production.
func DefaultConfig() Config {
	p := audio.DefaultSilenceParams()
	return Config{
		SampleRate:        audio.CanonicalSampleRate,
		TargetDBFS:        -20,
		SilenceThreshDBFS: p.ThresholdDBFS,
		MinSilenceMs:      p.MinSilenceMs,
		MinSpanMs:         p.MinSpanMs,
	}
}

// Validate reports configuration values that cannot produce a usable signal.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.TargetDBFS > 0 {
		errs = append(errs, fmt.Errorf("target_dbfs must be at most 0, got %v", c.TargetDBFS))
	}
	if c.SilenceThreshDBFS > 0 {
		errs = append(errs, fmt.Errorf("silence_thresh_dbfs must be at most 0, got %v", c.SilenceThreshDBFS))
	}
	if c.MinSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("min_silence_ms must be non-negative, got %d", c.MinSilenceMs))
	}
	if c.MinSpanMs < 0 {
		errs = append(errs, fmt.Errorf("min_span_ms must be non-negative, got %d", c.MinSpanMs))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.TargetDBFS == 0 {
		c.TargetDBFS = d.TargetDBFS
	}
	if c.SilenceThreshDBFS == 0 {
		c.SilenceThreshDBFS = d.SilenceThreshDBFS
	}
	if c.MinSilenceMs == 0 {
		c.MinSilenceMs = d.MinSilenceMs
	}
	if c.MinSpanMs == 0 {
		c.MinSpanMs = d.MinSpanMs
	}
	return c
}

func (c Config) silence() audio.SilenceParams {
	return audio.SilenceParams{
		ThresholdDBFS: c.SilenceThreshDBFS,
		MinSilenceMs:  c.MinSilenceMs,
		SeekStepMs:    1,
		MinSpanMs:     c.MinSpanMs,
	}
}

// Decoder decodes raw container bytes into interleaved samples.
// [*decode.Chain] is the production implementation.
type Decoder interface {
	Decode(ctx context.Context, data []byte, hint string) (decode.PCM, error)
}

// Normalizer converts uploads into canonical signals. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	cfg     Config
	decoder Decoder
	ffmpeg  *decode.FFmpeg
}

// Option is a functional option for [New].
type Option func(*Normalizer)

// WithDecoder replaces the decoder chain.
func WithDecoder(d Decoder) Option {
	return func(n *Normalizer) { n.decoder = d }
}

// New returns a Normalizer for cfg. Unless overridden, decoding uses a
// [decode.Chain] whose ffmpeg fallback runs cfg.FFmpegPath at the canonical
// sample rate.
func New(cfg Config, opts ...Option) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	cfg = cfg.withDefaults()
	n := &Normalizer{cfg: cfg}
	for _, o := range opts {
		o(n)
	}
	if n.decoder == nil {
		ff := decode.NewFFmpeg(cfg.FFmpegPath)
		ff.SampleRate = cfg.SampleRate
		n.ffmpeg = ff
		n.decoder = decode.NewChain(decode.WithFFmpeg(ff))
	}
	return n, nil
}

// FFmpeg returns the ffmpeg decoder of the default chain, or nil when the
// decoder was replaced with [WithDecoder].
func (n *Normalizer) FFmpeg() *decode.FFmpeg { return n.ffmpeg }

// Config returns the effective configuration with defaults applied.
func (n *Normalizer) Config() Config { return n.cfg }

// Canonical decodes raw into a mono signal at the configured sample rate
// without any loudness or silence processing. It is used to load reference
// recordings.
func (n *Normalizer) Canonical(ctx context.Context, raw []byte, hint string) (audio.Signal, error) {
	if len(raw) == 0 {
		return audio.Signal{}, ErrEmptyAudio
	}
	pcm, err := n.decoder.Decode(ctx, raw, hint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return audio.Signal{}, ctxErr
		}
		// A missing binary is a server fault, not a bad upload.
		if errors.Is(err, decode.ErrFFmpegMissing) {
			return audio.Signal{}, fmt.Errorf("preprocess: %w", err)
		}
		return audio.Signal{}, &DecodeError{Hint: hint, Err: err}
	}
	sig, err := audio.ToMono(pcm.Samples, pcm.Format, n.cfg.SampleRate)
	if err != nil {
		return audio.Signal{}, &DecodeError{Hint: hint, Err: err}
	}
	return sig, nil
}

// Normalize decodes raw and produces the canonical speech signal:
//
//  1. decode, downmix to mono and resample
//  2. RMS-normalize to the target loudness (skipped for digital silence)
//  3. trim to the range covered by all detected speech
//  4. keep only the first speech segment of the trimmed signal
//
// When no speech is detected the loudness-normalized signal is returned
// as is. raw is never modified.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, hint string) (audio.Signal, error) {
	sig, err := n.Canonical(ctx, raw, hint)
	if err != nil {
		return audio.Signal{}, err
	}
	inputMs := sig.LengthMs()

	if !math.IsInf(audio.DBFS(sig.Samples), -1) {
		sig = audio.NormalizeRMS(sig, n.cfg.TargetDBFS)
	}

	params := n.cfg.silence()
	spans := audio.DetectNonSilent(sig, params)
	if len(spans) == 0 {
		slog.Debug("preprocess: no speech detected, keeping full signal", "length_ms", inputMs)
		return sig, nil
	}
	sig = sig.Slice(spans[0].StartMs, spans[len(spans)-1].EndMs)

	if spans = audio.DetectNonSilent(sig, params); len(spans) > 0 {
		sig = sig.Slice(spans[0].StartMs, spans[0].EndMs)
	}

	slog.Debug("preprocess: normalized upload",
		"input_ms", inputMs,
		"output_ms", sig.LengthMs(),
		"sample_rate", sig.SampleRate,
	)
	return sig, nil
}
