// Package postgres provides a PostgreSQL-backed [reference.Store].
//
// Words live in a single table whose features column holds the Feature
// Bundle as JSONB, in the same encoding the analysis sidecar returns.
// [Migrate] creates it and is safe to call on every start.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Upsert(ctx, entry)
//	entry, err := store.Get(ctx, "haus")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlWords = `
CREATE TABLE IF NOT EXISTS words (
    id           TEXT         PRIMARY KEY,
    word         TEXT         NOT NULL,
    translation  TEXT         NOT NULL DEFAULT '',
    category     TEXT         NOT NULL DEFAULT '',
    audio_file   TEXT         NOT NULL DEFAULT '',
    features     JSONB,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_words_category ON words (category);
CREATE INDEX IF NOT EXISTS idx_words_word ON words (lower(word));
`

// Migrate creates the words table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlWords); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
