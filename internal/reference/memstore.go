package reference

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/speakingbuddy/pkg/features"
)

var (
	_ Store         = (*MemStore)(nil)
	_ FeatureWriter = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory [Store], usually filled from catalog
// files. The zero value is ready to use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// Add validates and stores e.
// Returns [ErrDuplicateID] if an entry with the same ID exists.
func (s *MemStore) Add(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[string]Entry)
	}
	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.Clone(), nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// UpsertFeatures implements [FeatureWriter].
func (s *MemStore) UpsertFeatures(_ context.Context, id string, b *features.Bundle) error {
	if b != nil {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("reference: features for %q: %w", id, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Features = b.Clone()
	s.entries[id] = e
	return nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
