// Package precompute fills in reference feature bundles ahead of time so the
// server does not have to analyse native recordings on every request.
//
// A [Precomputer] walks the words of a catalog, decodes each word's
// reference recording, runs it through the extractor and stores the bundle
// on the entry. Words that already carry features are skipped unless Force
// is set. Words are processed concurrently up to the worker limit; a failure
// on one word is logged and counted, it does not stop the others.
package precompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakingbuddy/internal/assess"
	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

const defaultWorkers = 4

// Stats summarises one run.
type Stats struct {
	Computed int
	Skipped  int

	// Missing counts words without a usable reference recording.
	Missing int
	Failed  int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Computed += o.Computed
	s.Skipped += o.Skipped
	s.Missing += o.Missing
	s.Failed += o.Failed
}

// Precomputer extracts reference bundles.
type Precomputer struct {
	extractor extractor.Provider
	loader    reference.AudioLoader
	audioDir  string
	workers   int
	force     bool
}

// Option configures a [Precomputer].
type Option func(*Precomputer)

// WithWorkers bounds the number of words processed at once. Default 4.
func WithWorkers(n int) Option {
	return func(p *Precomputer) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithForce recomputes words that already have features.
func WithForce(force bool) Option {
	return func(p *Precomputer) { p.force = force }
}

// New returns a Precomputer that reads recordings from audioDir.
func New(ex extractor.Provider, loader reference.AudioLoader, audioDir string, opts ...Option) (*Precomputer, error) {
	if ex == nil || loader == nil {
		return nil, errors.New("precompute: extractor and audio loader are required")
	}
	if audioDir == "" {
		return nil, errors.New("precompute: audio directory is required")
	}
	p := &Precomputer{extractor: ex, loader: loader, audioDir: audioDir, workers: defaultWorkers}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Catalog computes features for the words of cf and stores them on the
// entries in place. The returned error is only non-nil when ctx ends or the
// catalog itself is unusable; per-word problems are reported in Stats.
func (p *Precomputer) Catalog(ctx context.Context, cf *reference.CatalogFile) (Stats, error) {
	if cf == nil {
		return Stats{}, errors.New("precompute: catalog must not be nil")
	}

	// Resolve through a store holding feature-less copies so the resolver
	// always goes to the audio file.
	store := reference.NewMemStore()
	var st Stats
	var todo []int
	for i, e := range cf.Words {
		if e.Features != nil && !p.force {
			st.Skipped++
			continue
		}
		e = e.Clone()
		e.Features = nil
		if err := store.Add(ctx, e); err != nil {
			return st, fmt.Errorf("precompute: catalog %q: %w", cf.Catalog.Name, err)
		}
		todo = append(todo, i)
	}
	if len(todo) == 0 {
		return st, nil
	}

	res, err := reference.NewResolver(store, reference.WithAudio(p.audioDir, p.loader))
	if err != nil {
		return st, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, i := range todo {
		id := cf.Words[i].ID
		g.Go(func() error {
			b, ws, err := p.word(gctx, res, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			st.Add(ws)
			if b != nil {
				cf.Words[i].Features = b
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	return st, nil
}

// word computes one bundle. Only a context error is returned; anything else
// is logged and counted.
func (p *Precomputer) word(ctx context.Context, res *reference.Resolver, id string) (*features.Bundle, Stats, error) {
	log := slog.With("word_id", id)

	ref, err := res.Resolve(ctx, id)
	switch {
	case ctx.Err() != nil:
		return nil, Stats{}, ctx.Err()
	case errors.Is(err, assess.ErrMissingReference):
		log.Warn("no reference recording, skipping", "err", err)
		return nil, Stats{Missing: 1}, nil
	case err != nil:
		log.Error("reference recording unusable", "err", err)
		return nil, Stats{Failed: 1}, nil
	}

	b, err := p.extractor.Extract(ctx, ref.Signal)
	if err == nil && b == nil {
		err = errors.New("extractor returned no features")
	}
	if err == nil {
		err = b.Validate()
	}
	switch {
	case ctx.Err() != nil:
		return nil, Stats{}, ctx.Err()
	case err != nil:
		log.Error("feature extraction failed", "err", err)
		return nil, Stats{Failed: 1}, nil
	}
	log.Info("features computed", "seconds", ref.Signal.Seconds())
	return b, Stats{Computed: 1}, nil
}

// Upserter persists entries. The PostgreSQL reference store implements it.
type Upserter interface {
	Upsert(ctx context.Context, e reference.Entry) error
}

// Store writes every word of cf to dst and returns how many were written.
func Store(ctx context.Context, dst Upserter, cf *reference.CatalogFile) (int, error) {
	for i, e := range cf.Words {
		if err := dst.Upsert(ctx, e); err != nil {
			return i, fmt.Errorf("precompute: store %q: %w", e.ID, err)
		}
	}
	return len(cf.Words), nil
}
