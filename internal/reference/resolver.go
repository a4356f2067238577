package reference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/MrWong99/speakingbuddy/internal/assess"
	"github.com/MrWong99/speakingbuddy/pkg/audio"
)

// AudioLoader decodes a reference recording into a canonical signal without
// trimming it. [*preprocess.Normalizer] implements it through Canonical.
type AudioLoader interface {
	Canonical(ctx context.Context, raw []byte, formatHint string) (audio.Signal, error)
}

// Resolver turns a word into the [assess.Reference] an assessment needs.
// Precomputed features win; otherwise the reference recording is loaded
// from the audio directory.
type Resolver struct {
	store    Store
	loader   AudioLoader
	audioDir string
	matcher  *Matcher
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithAudio enables on-the-fly reference extraction: recordings are read
// from dir and decoded with loader.
func WithAudio(dir string, loader AudioLoader) ResolverOption {
	return func(r *Resolver) {
		r.audioDir = dir
		r.loader = loader
	}
}

// WithMatcher replaces the default word matcher.
func WithMatcher(m *Matcher) ResolverOption {
	return func(r *Resolver) { r.matcher = m }
}

// NewResolver returns a Resolver reading entries from store.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("reference: store is required")
	}
	r := &Resolver{store: store}
	for _, o := range opts {
		o(r)
	}
	if r.matcher == nil {
		r.matcher = NewMatcher()
	}
	return r, nil
}

// Store returns the underlying store.
func (r *Resolver) Store() Store { return r.store }

// Resolve returns the reference for word ID id.
//
// Errors wrap [ErrNotFound] for an unknown ID and [assess.ErrMissingReference]
// when the entry has neither features nor a readable recording.
func (r *Resolver) Resolve(ctx context.Context, id string) (assess.Reference, error) {
	e, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return assess.Reference{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return assess.Reference{}, fmt.Errorf("reference: get %q: %w", id, err)
	}
	return r.load(ctx, e)
}

// ResolveWord looks the entry up by word text with [Resolver.Lookup] and
// resolves it.
func (r *Resolver) ResolveWord(ctx context.Context, word string) (assess.Reference, error) {
	e, err := r.Lookup(ctx, word)
	if err != nil {
		return assess.Reference{}, err
	}
	return r.load(ctx, e)
}

// Lookup returns the entry whose word best matches text.
func (r *Resolver) Lookup(ctx context.Context, text string) (Entry, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("reference: list: %w", err)
	}
	e, conf, ok := r.matcher.Match(text, entries)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	if conf < 1 {
		slog.Debug("reference: fuzzy word match", "query", text, "word", e.Word, "confidence", conf)
	}
	return e, nil
}

func (r *Resolver) load(ctx context.Context, e Entry) (assess.Reference, error) {
	ref := assess.Reference{WordID: e.ID, Word: e.Word}
	if e.Features != nil {
		ref.Bundle = e.Features
		return ref, nil
	}
	if e.AudioFile == "" || r.loader == nil || r.audioDir == "" {
		return assess.Reference{}, fmt.Errorf("%w for %q", assess.ErrMissingReference, e.Word)
	}

	data, err := r.readAudio(e.AudioFile)
	if errors.Is(err, fs.ErrNotExist) {
		return assess.Reference{}, fmt.Errorf("%w for %q: %w", assess.ErrMissingReference, e.Word, err)
	}
	if err != nil {
		return assess.Reference{}, fmt.Errorf("reference: read audio for %q: %w", e.ID, err)
	}

	sig, err := r.loader.Canonical(ctx, data, e.AudioFile)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return assess.Reference{}, ctxErr
		}
		// The cause is not wrapped: a broken reference file is a server
		// fault and must not read as a bad learner upload.
		return assess.Reference{}, fmt.Errorf("reference: decode audio %q for %q: %v", e.AudioFile, e.ID, err)
	}
	ref.Signal = sig
	return ref, nil
}

// readAudio reads name from the audio directory. Paths escaping the
// directory are rejected by [os.Root].
func (r *Resolver) readAudio(name string) ([]byte, error) {
	root, err := os.OpenRoot(r.audioDir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return root.ReadFile(name)
}
