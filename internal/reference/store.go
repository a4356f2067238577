// Package reference provides the native-speaker side of an assessment: the
// word catalog, precomputed Feature Bundles, reference recordings and a
// lookup by spoken or typed word text.
//
// A catalog is a YAML file:
//
//	catalog:
//	  name: "German basics"
//	  language: "de"
//	words:
//	  - id: "haus"
//	    word: "Haus"
//	    translation: "house"
//	    category: "home"
//	    audio_file: "haus.wav"
//	    features: {placeholder: true}
//
// Entries whose features are missing or a placeholder are scored against the
// decoded reference recording instead; see [Resolver].
package reference

import (
	"context"
	"errors"

	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// ErrNotFound is returned when no entry exists for the requested word.
var ErrNotFound = errors.New("reference: word not found")

// ErrDuplicateID is returned by Add when an entry with the same ID exists.
var ErrDuplicateID = errors.New("reference: word with that ID already exists")

// Store is read access to reference entries.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry with the given ID.
	// Returns [ErrNotFound] when no entry with that ID exists.
	Get(ctx context.Context, id string) (Entry, error)

	// List returns all entries ordered by ID.
	List(ctx context.Context) ([]Entry, error)
}

// FeatureWriter stores precomputed bundles for existing entries.
type FeatureWriter interface {
	// UpsertFeatures replaces the bundle of entry id. A nil bundle clears it.
	// Returns [ErrNotFound] when no entry with that ID exists.
	UpsertFeatures(ctx context.Context, id string, b *features.Bundle) error
}

// Entry is one reference word.
type Entry struct {
	// ID is the stable identifier used in API requests.
	ID string `yaml:"id" json:"id"`

	// Word is the written form the learner is asked to pronounce.
	Word string `yaml:"word" json:"word"`

	Translation string `yaml:"translation,omitempty" json:"translation,omitempty"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`

	// AudioFile is the reference recording, relative to the configured
	// audio directory.
	AudioFile string `yaml:"audio_file,omitempty" json:"audio_file,omitempty"`

	// Features is the precomputed bundle of the reference recording, or nil
	// when it has not been computed yet.
	Features *features.Bundle `yaml:"features,omitempty" json:"features,omitempty"`
}

// Clone returns a copy of e whose bundle does not alias e's.
func (e Entry) Clone() Entry {
	e.Features = e.Features.Clone()
	return e
}
