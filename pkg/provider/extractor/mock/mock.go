// Package mock provides a test double for the extractor package.
//
// Provider returns a fixed bundle (or error) and records every call so tests
// can assert which signals reached the extractor:
//
//	p := &mock.Provider{Bundle: refBundle}
//	b, _ := p.Extract(ctx, sig)
//	p.Calls()[0].Signal // == sig
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

// ExtractCall records a single invocation of Provider.Extract.
type ExtractCall struct {
	// Ctx is the context passed to Extract.
	Ctx context.Context
	// Signal is the signal passed to Extract.
	Signal audio.Signal
}

// Provider is a mock implementation of extractor.Provider.
type Provider struct {
	mu sync.Mutex

	// Bundle is returned (cloned) by Extract when ExtractFunc is nil.
	Bundle *features.Bundle

	// Err, if non-nil, is returned as the error from Extract.
	Err error

	// ExtractFunc, if set, overrides Bundle and Err.
	ExtractFunc func(ctx context.Context, sig audio.Signal) (*features.Bundle, error)

	calls []ExtractCall
}

// Extract records the call and returns the configured result.
func (p *Provider) Extract(ctx context.Context, sig audio.Signal) (*features.Bundle, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ExtractCall{Ctx: ctx, Signal: sig})
	fn, b, err := p.ExtractFunc, p.Bundle, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, sig)
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &features.Bundle{}, nil
	}
	return b.Clone(), nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []ExtractCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExtractCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Extract calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements extractor.Provider at compile time.
var _ extractor.Provider = (*Provider)(nil)
