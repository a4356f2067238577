package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/speakingbuddy/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string // substrings of the joined error; nil means valid
	}{
		{
			name: "catalog only",
			yaml: "references: {catalog_files: [a.yaml]}",
		},
		{
			name: "postgres only",
			yaml: "references: {postgres_dsn: 'postgres://localhost/sb'}",
		},
		{
			name: "no reference source",
			yaml: "server: {log_level: info}",
			want: []string{"catalog_files or postgres_dsn"},
		},
		{
			name: "bad log level",
			yaml: "server: {log_level: loud}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"log_level"},
		},
		{
			name: "non-positive upload limit",
			yaml: "server: {max_upload_bytes: 0}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"max_upload_bytes"},
		},
		{
			name: "tls without key",
			yaml: "server: {tls: {cert_file: c.pem}}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"tls"},
		},
		{
			name: "fallback without name",
			yaml: "analysis: {fallbacks: [{base_url: 'http://x'}]}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"analysis.fallbacks[0].name"},
		},
		{
			name: "duplicate extractor entry",
			yaml: "analysis: {fallbacks: [{name: remote, base_url: 'http://localhost:8500'}]}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"duplicates"},
		},
		{
			name: "weights do not sum to one",
			yaml: "calibration: {weights: {pitch: 0.5}}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"weights"},
		},
		{
			name: "non-positive sigma",
			yaml: "calibration: {duration: {pace_sigma: 0}}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"pace_sigma"},
		},
		{
			name: "feedback bands out of order",
			yaml: "feedback: {good: 95}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"feedback"},
		},
		{
			name: "positive silence threshold",
			yaml: "audio: {silence_thresh_dbfs: 3}\nreferences: {catalog_files: [a.yaml]}",
			want: []string{"silence_thresh_dbfs"},
		},
		{
			name: "all problems reported together",
			yaml: "server: {log_level: loud, max_upload_bytes: -1}",
			want: []string{"log_level", "max_upload_bytes", "catalog_files"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %v", tc.want)
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}
