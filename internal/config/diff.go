package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied to a running server; every other change
// is reported so the operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameTranscription(old.Transcription, new.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "transcription")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTranscription(a, b TranscriptionConfig) bool {
	if a.Timeout != b.Timeout || a.MaxAudioBytes != b.MaxAudioBytes || a.CircuitBreaker != b.CircuitBreaker {
		return false
	}
	pa, pb := a.Providers(), b.Providers()
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if !sameEntry(pa[i], pb[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares two provider entries. Option values are compared by
// their printed form since they may hold nested maps.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, va := range a.Options {
		vb, ok := b.Options[k]
		if !ok || fmt.Sprint(va) != fmt.Sprint(vb) {
			return false
		}
	}
	return true
}
