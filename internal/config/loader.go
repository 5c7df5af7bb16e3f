package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}
var validTransports = map[string]bool{"stdio": true, "http": true}

// Load reads the YAML configuration file at path, overlays it onto
// [Defaults], applies the environment-variable overlay, and validates the
// result. If path is empty, only defaults and the environment overlay apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeInto(cfg, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r onto [Defaults], applies the
// environment overlay, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	if err := decodeInto(cfg, r); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyEnv overlays the environment variables named in spec.md §6's
// authoritative list onto cfg. Environment values win over whatever the YAML
// file (or defaults) set; unset variables leave the existing value alone.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("MCP_TRANSPORT"); ok {
		cfg.Server.Transport = v
	}
	if v, ok := os.LookupEnv("SHUTDOWN_GRACE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.ShutdownGraceSec = f
		}
	}
	if v, ok := os.LookupEnv("TOOL_INCLUDE"); ok {
		cfg.Tool.Include = splitCSV(v)
	}
	if v, ok := os.LookupEnv("TOOL_EXCLUDE"); ok {
		cfg.Tool.Exclude = splitCSV(v)
	}
	if v, ok := os.LookupEnv("MCP_MAX_ARGS_LEN"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.MaxArgsLen = n
		}
	}
	if v, ok := os.LookupEnv("MCP_MAX_STDOUT_BYTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.MaxStdoutBytes = n
		}
	}
	if v, ok := os.LookupEnv("MCP_MAX_STDERR_BYTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.MaxStderrBytes = n
		}
	}
	if v, ok := os.LookupEnv("MCP_DEFAULT_TIMEOUT_SEC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.DefaultTimeoutSec = n
		}
	}
	if v, ok := os.LookupEnv("MCP_DEFAULT_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.DefaultConcurrency = n
		}
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Transport != "" && !validTransports[cfg.Server.Transport] {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: stdio, http", cfg.Server.Transport))
	}
	if cfg.Server.ShutdownGraceSec < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_grace_sec must be >= 0, got %v", cfg.Server.ShutdownGraceSec))
	}

	if cfg.Security.MaxArgsLen <= 0 {
		errs = append(errs, fmt.Errorf("security.max_args_len must be > 0, got %d", cfg.Security.MaxArgsLen))
	}
	if cfg.Security.MaxStdoutBytes <= 0 {
		errs = append(errs, fmt.Errorf("security.max_stdout_bytes must be > 0, got %d", cfg.Security.MaxStdoutBytes))
	}
	if cfg.Security.MaxStderrBytes <= 0 {
		errs = append(errs, fmt.Errorf("security.max_stderr_bytes must be > 0, got %d", cfg.Security.MaxStderrBytes))
	}
	if cfg.Security.DefaultTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("security.default_timeout_sec must be > 0, got %d", cfg.Security.DefaultTimeoutSec))
	}
	if cfg.Security.DefaultConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("security.default_concurrency must be > 0, got %d", cfg.Security.DefaultConcurrency))
	}

	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureThreshold <= 0 {
			errs = append(errs, fmt.Errorf("circuit_breaker.failure_threshold must be > 0, got %d", cfg.CircuitBreaker.FailureThreshold))
		}
		if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
			errs = append(errs, fmt.Errorf("circuit_breaker.recovery_timeout must be > 0, got %v", cfg.CircuitBreaker.RecoveryTimeout))
		}
	}

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" && !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format %q is invalid; valid values: text, json", cfg.Logging.Format))
	}

	for _, name := range cfg.Tool.Include {
		if containsString(cfg.Tool.Exclude, name) {
			errs = append(errs, fmt.Errorf("tool %q appears in both tool.include and tool.exclude", name))
		}
	}

	return errors.Join(errs...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
