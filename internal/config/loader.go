package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidExtractorNames lists the extractor backends shipped with the server.
// Used by [Validate] to warn about unrecognised names.
var ValidExtractorNames = []string{"remote", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %v must not be negative", cfg.Server.RequestTimeout))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Analysis
	entries := append([]ProviderEntry{cfg.Analysis.Extractor}, cfg.Analysis.Fallbacks...)
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := "analysis.extractor"
		if i > 0 {
			prefix = fmt.Sprintf("analysis.fallbacks[%d]", i-1)
		}
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %v must not be negative", prefix, e.Timeout))
		}
		key := e.Name + "|" + e.BaseURL
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates entry %d of the extractor chain", prefix, prev))
		}
		seen[key] = i
		validateExtractorName(e.Name)
	}
	cb := cfg.Analysis.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("analysis.circuit_breaker values must not be negative"))
	}

	// Audio, scoring and feedback tuning
	if err := cfg.Audio.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	if err := cfg.Calibration.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Feedback.Validate(); err != nil {
		errs = append(errs, err)
	}

	// References
	refs := cfg.References
	if len(refs.CatalogFiles) == 0 && refs.PostgresDSN == "" {
		errs = append(errs, errors.New("references: set catalog_files or postgres_dsn"))
	}
	if len(refs.CatalogFiles) > 0 && refs.PostgresDSN != "" {
		slog.Warn("references.postgres_dsn is set; references.catalog_files are ignored by the server")
	}
	if refs.AudioDir == "" {
		slog.Warn("references.audio_dir is empty; words without precomputed features cannot be assessed")
	}

	return errors.Join(errs...)
}

// validateExtractorName logs a warning if name is not a built-in backend.
func validateExtractorName(name string) {
	if slices.Contains(ValidExtractorNames, name) {
		return
	}
	slog.Warn("unknown extractor name; may be a typo or a third-party backend",
		"name", name,
		"known", ValidExtractorNames,
	)
}
