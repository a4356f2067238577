package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/speakingbuddy/internal/config"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor/mock"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor/remote"
)

// RegisterBuiltinExtractors wires the extractor factories that ship with
// speakingbuddy into reg.
func RegisterBuiltinExtractors(reg *config.Registry) {
	reg.RegisterExtractor("remote", func(entry config.ProviderEntry) (extractor.Provider, error) {
		var opts []remote.Option
		if entry.Timeout > 0 {
			opts = append(opts, remote.WithTimeout(entry.Timeout))
		}
		if entry.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(entry.APIKey))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	// mock answers every extraction with an empty bundle, or with the error
	// named in options.error. Useful for smoke tests without a sidecar.
	reg.RegisterExtractor("mock", func(entry config.ProviderEntry) (extractor.Provider, error) {
		p := &mock.Provider{}
		if msg := optString(entry.Options, "error"); msg != "" {
			p.Err = errors.New(msg)
		}
		return p, nil
	})

	for _, name := range reg.Extractors() {
		slog.Debug("registered extractor", "name", name)
	}
}

// BuildProviders instantiates the primary extractor and its fallbacks in
// configuration order.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	entries := append([]config.ProviderEntry{cfg.Analysis.Extractor}, cfg.Analysis.Fallbacks...)
	ps := &Providers{}
	for i, entry := range entries {
		p, err := reg.CreateExtractor(entry)
		if err != nil {
			return nil, fmt.Errorf("app: extractor %d: %w", i, err)
		}
		ps.Extractors = append(ps.Extractors, NamedExtractor{Name: extractorName(entry), Provider: p})
		slog.Info("provider created", "kind", "extractor", "name", entry.Name, "base_url", entry.BaseURL)
	}
	return ps, nil
}

// extractorName labels an entry for breakers and metrics. Two entries of
// the same kind are told apart by their endpoint.
func extractorName(e config.ProviderEntry) string {
	if e.BaseURL == "" {
		return e.Name
	}
	return e.Name + "@" + e.BaseURL
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
