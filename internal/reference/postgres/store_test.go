package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/internal/reference/postgres"
	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// testDSN returns the test database DSN, or skips the test if
// SPEAKINGBUDDY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SPEAKINGBUDDY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPEAKINGBUDDY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore returns a Store on a freshly created words table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS words CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func bundle() *features.Bundle {
	return &features.Bundle{
		Pitch: features.Track{Mean: 150, Min: 120, Max: 180, Values: []float64{140, 150, 160}},
		Formants: features.Formants{
			F1: features.Formant{Mean: 500, Values: []float64{490, 510}},
		},
		Duration: features.Duration{TotalSeconds: 0.8, VoicedFraction: 0.7},
	}
}

func TestStore_UpsertGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []reference.Entry{
		{ID: "haus", Word: "Haus", Translation: "house", AudioFile: "haus.wav"},
		{ID: "baum", Word: "Baum", Category: "nature", Features: bundle()},
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert(%s): %v", e.ID, err)
		}
	}

	got, err := store.Get(ctx, "baum")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Category != "nature" || got.Features == nil || got.Features.Formants.F1.Mean != 500 {
		t.Errorf("baum = %+v", got)
	}

	haus, err := store.Get(ctx, "haus")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if haus.Features != nil || haus.AudioFile != "haus.wav" {
		t.Errorf("haus = %+v", haus)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "baum" || list[1].ID != "haus" {
		t.Errorf("List = %+v", list)
	}

	if _, err := store.Get(ctx, "katze"); !errors.Is(err, reference.ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}
}

func TestStore_UpsertFeatures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, reference.Entry{ID: "haus", Word: "Haus"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.UpsertFeatures(ctx, "haus", bundle()); err != nil {
		t.Fatalf("UpsertFeatures: %v", err)
	}

	// Re-upserting the entry without a bundle keeps the stored one.
	if err := store.Upsert(ctx, reference.Entry{ID: "haus", Word: "Haus", Translation: "house"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := store.Get(ctx, "haus")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Features == nil || got.Features.Pitch.Mean != 150 || got.Translation != "house" {
		t.Errorf("haus = %+v", got)
	}

	if err := store.UpsertFeatures(ctx, "katze", bundle()); !errors.Is(err, reference.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_PlaceholderFeatures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, reference.Entry{ID: "hund", Word: "Hund"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	// Rows imported by older tooling carry a placeholder marker.
	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `UPDATE words SET features = '{"placeholder": true}' WHERE id = 'hund'`); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "hund")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Features != nil {
		t.Errorf("placeholder decoded as %+v", got.Features)
	}
}
