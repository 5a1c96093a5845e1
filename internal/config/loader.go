package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the transcription providers that ship with the
// service. Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"google", "whisper", "deepgram"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields of cfg with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Transcription.Timeout == 0 {
		cfg.Transcription.Timeout = DefaultTimeout
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Transcription
	tc := cfg.Transcription
	if tc.Primary.Name == "" {
		errs = append(errs, errors.New("transcription.primary.name is required"))
	}
	seen := make(map[string]string, 1+len(tc.Fallbacks))
	for i, entry := range tc.Providers() {
		prefix := "transcription.primary"
		if i > 0 {
			prefix = fmt.Sprintf("transcription.fallbacks[%d]", i-1)
			if entry.Name == "" {
				errs = append(errs, fmt.Errorf("%s.name is required", prefix))
				continue
			}
		}
		if entry.Name == "" {
			continue
		}
		if prev, ok := seen[entry.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, entry.Name, prev))
		}
		seen[entry.Name] = prefix
		validateProviderName(entry.Name)
	}
	if tc.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transcription.timeout %s must not be negative", tc.Timeout))
	}
	if tc.MaxAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("transcription.max_audio_bytes %d must not be negative", tc.MaxAudioBytes))
	}
	cb := tc.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("transcription.circuit_breaker values must not be negative"))
	}

	// Store
	if dsn := cfg.Store.PostgresDSN; dsn != "" &&
		!strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") && !strings.Contains(dsn, "=") {
		errs = append(errs, errors.New("store.postgres_dsn must be a postgres:// URL or a key=value connection string"))
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; assessments will not be stored")
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %g must be between 0 and 1", r))
	}

	// MCP
	if !cfg.MCP.Disabled && cfg.MCP.Path != "" && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown transcription provider; may be a typo or a custom registration",
		"name", name,
		"known", ValidProviderNames,
	)
}
