// Package app wires the speakingbuddy subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, Reload applies
// live configuration changes and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithReferenceStore,
// WithNormalizer, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/speakingbuddy/internal/api"
	"github.com/MrWong99/speakingbuddy/internal/assess"
	"github.com/MrWong99/speakingbuddy/internal/config"
	"github.com/MrWong99/speakingbuddy/internal/feedback"
	"github.com/MrWong99/speakingbuddy/internal/health"
	"github.com/MrWong99/speakingbuddy/internal/observe"
	"github.com/MrWong99/speakingbuddy/internal/preprocess"
	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/internal/reference/postgres"
	"github.com/MrWong99/speakingbuddy/internal/resilience"
	"github.com/MrWong99/speakingbuddy/internal/scoring"
	"github.com/MrWong99/speakingbuddy/pkg/audio/decode"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// NamedExtractor is one entry of the extractor chain.
type NamedExtractor struct {
	Name     string
	Provider extractor.Provider
}

// Providers holds the extractor chain built by main.go via the config
// registry. The first entry is the primary, the rest are fallbacks in order.
type Providers struct {
	Extractors []NamedExtractor
}

// Normalizer is the audio front end: it normalizes learner uploads and
// produces the canonical form of reference recordings.
type Normalizer interface {
	assess.Normalizer
	reference.AudioLoader
}

// App owns all subsystem lifetimes and serves the pronunciation API.
type App struct {
	cfg       *config.Config
	providers *Providers

	logLevel       *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	normalizer Normalizer
	extractor  *resilience.ExtractorFallback
	store      reference.Store
	resolver   *reference.Resolver
	api        *api.Handler
	health     *health.Handler
	handler    http.Handler
	checkers   []health.Checker

	mu     sync.Mutex
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithReferenceStore injects a reference store instead of creating one from
// config.
func WithReferenceStore(s reference.Store) Option {
	return func(a *App) { a.store = s }
}

// WithNormalizer injects the audio front end instead of creating one from
// the audio config.
func WithNormalizer(n Normalizer) Option {
	return func(a *App) { a.normalizer = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets Reload change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || len(providers.Extractors) == 0 {
		return nil, errors.New("app: at least one extractor is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initNormalizer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init normalizer: %w", err)
	}
	a.initExtractor()

	if err := a.initReferences(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init references: %w", err)
	}

	asr, err := a.buildAssessor(cfg)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init assessor: %w", err)
	}
	a.api, err = api.New(asr, a.resolver,
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
	)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init api: %w", err)
	}

	a.initHTTP()
	return a, nil
}

func (a *App) initNormalizer() error {
	if a.normalizer == nil {
		n, err := preprocess.New(a.cfg.Audio)
		if err != nil {
			return err
		}
		a.normalizer = n
	}
	if f, ok := a.normalizer.(interface{ FFmpeg() *decode.FFmpeg }); ok {
		if ff := f.FFmpeg(); ff != nil {
			a.checkers = append(a.checkers, health.BinaryCheck("ffmpeg", ff))
		}
	}
	return nil
}

// initExtractor composes the configured extractors behind per-backend
// circuit breakers.
func (a *App) initExtractor() {
	cb := a.cfg.Analysis.CircuitBreaker
	primary := a.providers.Extractors[0]
	f := resilience.NewExtractorFallback(primary.Provider, primary.Name, resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}, resilience.WithMetrics(a.metrics))
	for _, fb := range a.providers.Extractors[1:] {
		f.AddFallback(fb.Name, fb.Provider)
	}
	a.extractor = f
	a.checkers = append(a.checkers, health.ReadyCheck("extractor", f))

	// Backends that can be pinged report their own reachability.
	for _, ne := range a.providers.Extractors {
		if p, ok := ne.Provider.(health.Pinger); ok {
			a.checkers = append(a.checkers, health.PingCheck("extractor."+ne.Name, p))
		}
	}
	slog.Info("extractor chain ready", "backends", f.Backends())
}

// initReferences opens the reference store (PostgreSQL when a DSN is set,
// otherwise the YAML catalogs) and builds the resolver on top of it.
func (a *App) initReferences(ctx context.Context) error {
	refs := a.cfg.References
	switch {
	case a.store != nil:
	case refs.PostgresDSN != "":
		store, err := postgres.NewStore(ctx, refs.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.checkers = append(a.checkers, health.PingCheck("postgres", store))
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		store, err := reference.LoadCatalogs(ctx, refs.CatalogFiles...)
		if err != nil {
			return err
		}
		slog.Info("loaded reference catalogs", "files", len(refs.CatalogFiles), "words", store.Len())
		a.store = store
	}
	a.checkers = append(a.checkers, health.ReferencesCheck(a.store))

	var opts []reference.ResolverOption
	if refs.AudioDir != "" {
		opts = append(opts, reference.WithAudio(refs.AudioDir, a.normalizer))
	}
	r, err := reference.NewResolver(a.store, opts...)
	if err != nil {
		return err
	}
	a.resolver = r
	return nil
}

// buildAssessor creates an assessor for the calibration and feedback
// thresholds in cfg. The rest of the pipeline is shared.
func (a *App) buildAssessor(cfg *config.Config) (*assess.Assessor, error) {
	sc, err := scoring.NewScorer(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	fb, err := feedback.NewSynthesizer(cfg.Feedback)
	if err != nil {
		return nil, err
	}
	return assess.New(a.normalizer, a.extractor,
		assess.WithScorer(sc),
		assess.WithFeedback(fb),
		assess.WithMetrics(a.metrics),
	)
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()
	a.api.Register(mux)

	a.health = health.New(a.checkers...)
	a.health.Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the reference store in use.
func (a *App) Store() reference.Store { return a.store }

// Run listens on server.listen_addr and serves HTTP until ctx is cancelled.
// It returns ctx's error after a cancellation, or the listener error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like Run but uses an existing listener. Serve takes ownership
// of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Reload applies the live-reloadable parts of new: the log level, the
// scoring calibration and the feedback thresholds. Changes to other
// sections are logged and take effect after a restart. Reload is meant to
// be the callback of a [config.Watcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.CalibrationChanged || d.FeedbackChanged {
		asr, err := a.buildAssessor(new)
		if err != nil {
			slog.Error("config reload: keeping previous assessor", "err", err)
		} else {
			a.api.SetAssessor(asr)
			slog.Info("assessor reloaded",
				"calibration_changed", d.CalibrationChanged,
				"feedback_changed", d.FeedbackChanged,
			)
		}
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart", "section", section)
	}
}

// Shutdown stops the HTTP server, waiting for in-flight requests, then runs
// the closers in order. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// SlogLevel maps a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
