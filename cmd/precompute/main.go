// Command precompute extracts reference feature bundles for the words of the
// configured catalogs, so the server can score against them without
// analysing the native recordings on every request.
//
//	precompute -config config.yaml                       # update catalogs in place
//	precompute -config config.yaml -out a1.features.yaml # single catalog to a new file
//	precompute -config config.yaml -db                   # upsert into references.postgres_dsn
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/speakingbuddy/internal/app"
	"github.com/MrWong99/speakingbuddy/internal/config"
	"github.com/MrWong99/speakingbuddy/internal/precompute"
	"github.com/MrWong99/speakingbuddy/internal/preprocess"
	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/internal/reference/postgres"
	"github.com/MrWong99/speakingbuddy/internal/resilience"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	out := flag.String("out", "", "write the updated catalog here instead of overwriting it (single catalog only)")
	force := flag.Bool("force", false, "recompute words that already have features")
	toDB := flag.Bool("db", false, "upsert the words into references.postgres_dsn instead of writing YAML")
	workers := flag.Int("workers", 4, "number of words analysed concurrently")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "precompute: %v\n", err)
		return 2
	}
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	paths := cfg.References.CatalogFiles
	switch {
	case len(paths) == 0:
		fmt.Fprintln(os.Stderr, "precompute: references.catalog_files is empty")
		return 2
	case *out != "" && len(paths) > 1:
		fmt.Fprintln(os.Stderr, "precompute: -out needs exactly one catalog file")
		return 2
	case *out != "" && *toDB:
		fmt.Fprintln(os.Stderr, "precompute: -out and -db are mutually exclusive")
		return 2
	case *toDB && cfg.References.PostgresDSN == "":
		fmt.Fprintln(os.Stderr, "precompute: -db needs references.postgres_dsn")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := precomputeAll(ctx, cfg, paths, *out, *force, *toDB, *workers); err != nil {
		slog.Error("precompute failed", "err", err)
		return 1
	}
	return 0
}

func precomputeAll(ctx context.Context, cfg *config.Config, paths []string, out string, force, toDB bool, workers int) error {
	norm, err := preprocess.New(cfg.Audio)
	if err != nil {
		return err
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinExtractors(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return err
	}
	primary := providers.Extractors[0]
	cb := cfg.Analysis.CircuitBreaker
	ex := resilience.NewExtractorFallback(primary.Provider, primary.Name, resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	})
	for _, fb := range providers.Extractors[1:] {
		ex.AddFallback(fb.Name, fb.Provider)
	}

	p, err := precompute.New(ex, norm, cfg.References.AudioDir,
		precompute.WithForce(force),
		precompute.WithWorkers(workers),
	)
	if err != nil {
		return err
	}

	var db *postgres.Store
	if toDB {
		db, err = postgres.NewStore(ctx, cfg.References.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var total precompute.Stats
	for _, path := range paths {
		cf, err := reference.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		st, err := p.Catalog(ctx, cf)
		if err != nil {
			return fmt.Errorf("catalog %q: %w", path, err)
		}
		slog.Info("catalog processed", "path", path,
			"computed", st.Computed, "skipped", st.Skipped, "missing", st.Missing, "failed", st.Failed)
		total.Add(st)

		switch {
		case db != nil:
			n, err := precompute.Store(ctx, db, cf)
			if err != nil {
				return err
			}
			slog.Info("words stored", "path", path, "count", n)
		case st.Computed == 0 && out == "":
			// Nothing changed; leave the file alone.
		default:
			dst := path
			if out != "" {
				dst = out
			}
			if err := reference.WriteCatalogFile(dst, cf); err != nil {
				return err
			}
			slog.Info("catalog written", "path", dst)
		}
	}

	fmt.Printf("computed %d, skipped %d, missing %d, failed %d\n",
		total.Computed, total.Skipped, total.Missing, total.Failed)
	if total.Failed > 0 {
		return errors.New("some words could not be analysed")
	}
	return nil
}
