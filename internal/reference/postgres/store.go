package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/pkg/features"
)

var (
	_ reference.Store         = (*Store)(nil)
	_ reference.FeatureWriter = (*Store)(nil)
)

// Store is a [reference.Store] backed by a pgx connection pool. Safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const selectWord = `SELECT id, word, translation, category, audio_file, features FROM words`

// Get implements [reference.Store].
func (s *Store) Get(ctx context.Context, id string) (reference.Entry, error) {
	rows, err := s.pool.Query(ctx, selectWord+` WHERE id = $1`, id)
	if err != nil {
		return reference.Entry{}, fmt.Errorf("postgres store: get %q: %w", id, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return reference.Entry{}, reference.ErrNotFound
	}
	if err != nil {
		return reference.Entry{}, fmt.Errorf("postgres store: get %q: %w", id, err)
	}
	return e, nil
}

// List implements [reference.Store].
func (s *Store) List(ctx context.Context) ([]reference.Entry, error) {
	rows, err := s.pool.Query(ctx, selectWord+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return entries, nil
}

// Upsert inserts e or replaces the stored row with the same ID. A nil
// bundle keeps the stored features.
func (s *Store) Upsert(ctx context.Context, e reference.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	feats, err := encodeFeatures(e.Features)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO words (id, word, translation, category, audio_file, features)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    word        = EXCLUDED.word,
    translation = EXCLUDED.translation,
    category    = EXCLUDED.category,
    audio_file  = EXCLUDED.audio_file,
    features    = COALESCE(EXCLUDED.features, words.features),
    updated_at  = now()`

	if _, err := s.pool.Exec(ctx, q, e.ID, e.Word, e.Translation, e.Category, e.AudioFile, feats); err != nil {
		return fmt.Errorf("postgres store: upsert %q: %w", e.ID, err)
	}
	return nil
}

// UpsertFeatures implements [reference.FeatureWriter].
func (s *Store) UpsertFeatures(ctx context.Context, id string, b *features.Bundle) error {
	feats, err := encodeFeatures(b)
	if err != nil {
		return fmt.Errorf("postgres store: features for %q: %w", id, err)
	}

	const q = `UPDATE words SET features = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, feats)
	if err != nil {
		return fmt.Errorf("postgres store: update features %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return reference.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (reference.Entry, error) {
	var (
		e     reference.Entry
		feats []byte
	)
	if err := row.Scan(&e.ID, &e.Word, &e.Translation, &e.Category, &e.AudioFile, &feats); err != nil {
		return reference.Entry{}, err
	}
	if feats == nil {
		return e, nil
	}
	b, err := features.Decode(feats)
	switch {
	case errors.Is(err, features.ErrPlaceholder):
	case err != nil:
		return reference.Entry{}, fmt.Errorf("word %q: %w", e.ID, err)
	default:
		e.Features = b
	}
	return e, nil
}

// encodeFeatures returns the JSONB argument for b; nil maps to SQL NULL.
func encodeFeatures(b *features.Bundle) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return features.Encode(b)
}
