package decode_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/audio/decode"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	wavHeader := audio.EncodeWAV(audio.Signal{Samples: []float64{0}, SampleRate: 8000})

	tests := []struct {
		name string
		data []byte
		hint string
		want decode.Kind
	}{
		{name: "wav magic", data: wavHeader, want: decode.KindWAV},
		{name: "wav magic beats hint", data: wavHeader, hint: "clip.mp3", want: decode.KindWAV},
		{name: "id3 tag", data: []byte("ID3\x04\x00"), want: decode.KindMP3},
		{name: "mpeg frame sync", data: []byte{0xFF, 0xFB, 0x90, 0x00}, want: decode.KindMP3},
		{name: "webm", data: []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, want: decode.KindWebM},
		{name: "ogg", data: []byte("OggS\x00\x02"), want: decode.KindOgg},
		{name: "flac", data: []byte("fLaC\x00"), want: decode.KindFLAC},
		{name: "mp4", data: []byte("\x00\x00\x00\x20ftypM4A "), want: decode.KindMP4},
		{name: "hint file name", data: []byte("????"), hint: "upload.webm", want: decode.KindWebM},
		{name: "hint mime", data: []byte("????"), hint: "audio/ogg", want: decode.KindOgg},
		{name: "hint upper case", data: nil, hint: "TAKE1.M4A", want: decode.KindMP4},
		{name: "unknown", data: []byte("hello"), hint: "notes.txt", want: decode.KindUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := decode.Detect(tc.data, tc.hint); got != tc.want {
				t.Errorf("Detect = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestWAV_RoundTrip16(t *testing.T) {
	t.Parallel()

	sig := audio.Signal{Samples: []float64{0, 0.5, -0.5, 0.25}, SampleRate: 16000}
	pcm, err := decode.WAV{}.Decode(context.Background(), audio.EncodeWAV(sig))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format.SampleRate != 16000 || pcm.Format.Channels != 1 {
		t.Errorf("format = %+v, want 16000Hz mono", pcm.Format)
	}
	if len(pcm.Samples) != len(sig.Samples) {
		t.Fatalf("got %d samples, want %d", len(pcm.Samples), len(sig.Samples))
	}
	for i := range sig.Samples {
		if math.Abs(pcm.Samples[i]-sig.Samples[i]) > 1.0/32768 {
			t.Errorf("sample %d = %v, want %v", i, pcm.Samples[i], sig.Samples[i])
		}
	}
}

func TestWAV_Stereo24Bit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo24.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 24, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{1 << 22, -(1 << 22), 0, 1 << 21},
		SourceBitDepth: 24,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encode close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	pcm, err := decode.WAV{}.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format.Channels != 2 || pcm.Format.SampleRate != 8000 {
		t.Errorf("format = %+v, want 8000Hz stereo", pcm.Format)
	}
	if pcm.Frames() != 2 {
		t.Fatalf("Frames = %d, want 2", pcm.Frames())
	}
	want := []float64{0.5, -0.5, 0, 0.25}
	for i := range want {
		if math.Abs(pcm.Samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, pcm.Samples[i], want[i])
		}
	}
}

func TestWAV_Garbage(t *testing.T) {
	t.Parallel()
	if _, err := (decode.WAV{}).Decode(context.Background(), []byte("RIFF0000WAVEjunk")); err == nil {
		t.Error("expected error for truncated wav")
	}
}

func TestMP3_Garbage(t *testing.T) {
	t.Parallel()
	if _, err := (decode.MP3{}).Decode(context.Background(), []byte{0xFF, 0xFB, 0x00, 0x00}); err == nil {
		t.Error("expected error for truncated mp3")
	}
}

func TestDecoders_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := audio.EncodeWAV(audio.Signal{Samples: []float64{0.1}, SampleRate: 8000})
	if _, err := (decode.WAV{}).Decode(ctx, data); !errors.Is(err, context.Canceled) {
		t.Errorf("WAV err = %v, want context.Canceled", err)
	}
	if _, err := (decode.MP3{}).Decode(ctx, data); !errors.Is(err, context.Canceled) {
		t.Errorf("MP3 err = %v, want context.Canceled", err)
	}
}

// stubDecoder returns a fixed result and counts calls.
type stubDecoder struct {
	name  string
	pcm   decode.PCM
	err   error
	calls atomic.Int32
}

func (s *stubDecoder) Name() string { return s.name }

func (s *stubDecoder) Decode(context.Context, []byte) (decode.PCM, error) {
	s.calls.Add(1)
	return s.pcm, s.err
}

func TestChain_FallsBackOnUnsupported(t *testing.T) {
	t.Parallel()

	native := &stubDecoder{name: "wav", err: decode.ErrUnsupported}
	fallback := &stubDecoder{name: "ffmpeg", pcm: decode.PCM{
		Samples: []float64{0.1, 0.2},
		Format:  audio.Format{SampleRate: 22050, Channels: 1},
	}}
	c := decode.NewChain(decode.WithWAV(native), decode.WithFFmpeg(fallback))

	data := audio.EncodeWAV(audio.Signal{Samples: []float64{0}, SampleRate: 8000})
	pcm, err := c.Decode(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm.Samples) != 2 {
		t.Errorf("got %d samples, want 2", len(pcm.Samples))
	}
	if native.calls.Load() != 1 || fallback.calls.Load() != 1 {
		t.Errorf("calls native=%d fallback=%d, want 1 and 1", native.calls.Load(), fallback.calls.Load())
	}
}

func TestChain_NoFallbackOnCorruptInput(t *testing.T) {
	t.Parallel()

	corrupt := errors.New("broken header")
	native := &stubDecoder{name: "mp3", err: corrupt}
	fallback := &stubDecoder{name: "ffmpeg"}
	c := decode.NewChain(decode.WithMP3(native), decode.WithFFmpeg(fallback))

	_, err := c.Decode(context.Background(), []byte("ID3\x04"), "")
	if !errors.Is(err, corrupt) {
		t.Fatalf("err = %v, want %v", err, corrupt)
	}
	if fallback.calls.Load() != 0 {
		t.Error("fallback decoder should not run for corrupt native input")
	}
}

func TestChain_UnknownWithoutFFmpeg(t *testing.T) {
	t.Parallel()
	c := decode.NewChain(decode.WithFFmpeg(nil))
	_, err := c.Decode(context.Background(), []byte("not audio"), "upload.webm")
	if !errors.Is(err, decode.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestFFmpeg_Missing(t *testing.T) {
	t.Parallel()
	f := decode.NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	if f.Available() {
		t.Fatal("Available() = true for missing binary")
	}
	if _, err := f.Decode(context.Background(), []byte("x")); !errors.Is(err, decode.ErrFFmpegMissing) {
		t.Errorf("err = %v, want ErrFFmpegMissing", err)
	}
}

func TestFFmpeg_DecodesWAV(t *testing.T) {
	t.Parallel()
	f := decode.NewFFmpeg("")
	if !f.Available() {
		t.Skip("ffmpeg not installed")
	}

	samples := make([]float64, 8000)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/8000)
	}
	data := audio.EncodeWAV(audio.Signal{Samples: samples, SampleRate: 8000})

	pcm, err := f.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format.Channels != 1 || pcm.Format.SampleRate != audio.CanonicalSampleRate {
		t.Errorf("format = %+v, want canonical mono", pcm.Format)
	}
	if got := pcm.Frames(); got < audio.CanonicalSampleRate*9/10 || got > audio.CanonicalSampleRate*11/10 {
		t.Errorf("Frames = %d, want about %d", got, audio.CanonicalSampleRate)
	}
}
