package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CalibrationChanged and FeedbackChanged are applied live by swapping
	// the assessor.
	CalibrationChanged bool
	FeedbackChanged    bool

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Live reports whether d contains anything that can be applied without a
// restart.
func (d ConfigDiff) Live() bool {
	return d.LogLevelChanged || d.CalibrationChanged || d.FeedbackChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.CalibrationChanged = old.Calibration != new.Calibration
	d.FeedbackChanged = old.Feedback != new.Feedback

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	a, b := old.Server, new.Server
	restart("server", a.ListenAddr != b.ListenAddr ||
		a.RequestTimeout != b.RequestTimeout ||
		a.MaxUploadBytes != b.MaxUploadBytes ||
		!reflect.DeepEqual(a.TLS, b.TLS))
	restart("analysis", !reflect.DeepEqual(old.Analysis, new.Analysis))
	restart("audio", old.Audio != new.Audio)
	restart("references", !slices.Equal(old.References.CatalogFiles, new.References.CatalogFiles) ||
		old.References.AudioDir != new.References.AudioDir ||
		old.References.PostgresDSN != new.References.PostgresDSN)
	restart("telemetry", old.Telemetry != new.Telemetry)

	return d
}
