package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

// ErrProviderNotRegistered is returned by [Registry.CreateExtractor] when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ExtractorFactory builds an extractor from its configuration entry.
type ExtractorFactory func(ProviderEntry) (extractor.Provider, error)

// Registry maps extractor names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]ExtractorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]ExtractorFactory)}
}

// RegisterExtractor registers factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterExtractor(name string, factory ExtractorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[name] = factory
}

// CreateExtractor instantiates the extractor registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered.
func (r *Registry) CreateExtractor(entry ProviderEntry) (extractor.Provider, error) {
	r.mu.RLock()
	factory, ok := r.extractors[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: extractor/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create extractor %q: %w", entry.Name, err)
	}
	return p, nil
}

// Extractors returns the registered names in sorted order.
func (r *Registry) Extractors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extractors))
	for n := range r.extractors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
