package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/speakingbuddy/internal/app"
	"github.com/MrWong99/speakingbuddy/internal/config"
	"github.com/MrWong99/speakingbuddy/internal/preprocess"
	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor/mock"
)

// stubNormalizer returns a fixed half-second signal for any upload.
type stubNormalizer struct{}

var testSignal = audio.Signal{Samples: make([]float64, 11025), SampleRate: audio.CanonicalSampleRate}

func (stubNormalizer) Normalize(context.Context, []byte, string) (audio.Signal, error) {
	return testSignal, nil
}

func (stubNormalizer) Canonical(context.Context, []byte, string) (audio.Signal, error) {
	return testSignal, nil
}

func refBundle() *features.Bundle {
	return &features.Bundle{
		Pitch: features.Track{Mean: 180, Std: 12, Min: 160, Max: 210, Values: []float64{170, 180, 195, 175}},
		Formants: features.Formants{
			F1: features.Formant{Mean: 650, Std: 40, Values: []float64{620, 650, 680}},
			F2: features.Formant{Mean: 1200, Std: 80, Values: []float64{1150, 1200, 1250}},
			F3: features.Formant{Mean: 2500, Std: 90, Values: []float64{2450, 2500, 2550}},
		},
		Intensity:    features.Track{Mean: 65, Std: 3, Min: 60, Max: 70, Values: []float64{62, 66, 68, 64}},
		Duration:     features.Duration{TotalSeconds: 0.6, VoicedFraction: 0.7},
		VoiceQuality: features.VoiceQuality{Jitter: 0.01, Shimmer: 0.04},
	}
}

// userBundle matches the reference except for a missing pitch track.
func userBundle() *features.Bundle {
	b := refBundle()
	b.Pitch = features.Track{}
	return b
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.References.CatalogFiles = nil
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()

	store := reference.NewMemStore()
	if err := store.Add(context.Background(), reference.Entry{ID: "haus", Word: "Haus", Features: refBundle()}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	providers := &app.Providers{Extractors: []app.NamedExtractor{
		{Name: "mock", Provider: &mock.Provider{Bundle: userBundle()}},
	}}
	opts = append([]app.Option{
		app.WithReferenceStore(store),
		app.WithNormalizer(stubNormalizer{}),
	}, opts...)

	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func check(t *testing.T, h http.Handler, wordID string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("word_id", wordID)
	fw, _ := mw.CreateFormFile("audio", "take.wav")
	fw.Write([]byte("RIFF...."))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/pronunciation/check", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return rec.Code, body
}

func pitchScore(t *testing.T, body map[string]any) float64 {
	t.Helper()
	bd, ok := body["breakdown"].(map[string]any)
	if !ok {
		t.Fatalf("no breakdown in %v", body)
	}
	return bd["pitch"].(float64)
}

func TestNew_Check(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())

	status, body := check(t, a.Handler(), "haus")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if got := pitchScore(t, body); got != 50 {
		t.Errorf("pitch = %v, want the neutral 50", got)
	}
	if body["word"] != "Haus" {
		t.Errorf("word = %v", body["word"])
	}

	status, _ = check(t, a.Handler(), "nope")
	if status != http.StatusNotFound {
		t.Errorf("unknown word status = %d, want 404", status)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), nil, &app.Providers{}); err == nil {
		t.Error("New(nil config) should fail")
	}
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Error("New without extractors should fail")
	}

	cfg := testConfig()
	cfg.References.CatalogFiles = []string{"testdata/does-not-exist.yaml"}
	providers := &app.Providers{Extractors: []app.NamedExtractor{{Name: "mock", Provider: &mock.Provider{}}}}
	if _, err := app.New(context.Background(), cfg, providers, app.WithNormalizer(stubNormalizer{})); err == nil {
		t.Error("New with a missing catalog should fail")
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d, body %s", path, rec.Code, rec.Body)
		}
	}
}

func TestReadyz_FFmpegMissing(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Audio.FFmpegPath = "/nonexistent/ffmpeg"
	n, err := preprocess.New(cfg.Audio)
	if err != nil {
		t.Fatalf("preprocess.New: %v", err)
	}
	a := newTestApp(t, cfg, app.WithNormalizer(n))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz = %d, want 503 (body %s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"ffmpeg":"fail`) {
		t.Errorf("body %s lacks failing ffmpeg check", rec.Body)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	a := newTestApp(t, testConfig(), app.WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics\n" {
		t.Errorf("/metrics = %d %q", rec.Code, rec.Body)
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	var lv slog.LevelVar
	old := testConfig()
	a := newTestApp(t, old, app.WithLogLevel(&lv))

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Calibration.NeutralScore = 80
	a.Reload(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	_, body := check(t, a.Handler(), "haus")
	if got := pitchScore(t, body); got != 80 {
		t.Errorf("pitch = %v, want the reloaded neutral score 80", got)
	}
}

func TestReload_RestartOnlyKeepsAssessor(t *testing.T) {
	t.Parallel()
	old := testConfig()
	a := newTestApp(t, old)

	updated := testConfig()
	updated.Server.ListenAddr = "127.0.0.1:9999"
	a.Reload(old, updated)

	_, body := check(t, a.Handler(), "haus")
	if got := pitchScore(t, body); got != 50 {
		t.Errorf("pitch = %v, want 50", got)
	}
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for range 50 {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Error("server still accepting connections after Shutdown")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
