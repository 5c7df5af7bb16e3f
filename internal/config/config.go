// Package config provides the configuration schema, YAML+env loader,
// validation, diffing, and file watching for the MCP security-tool server.
package config

import "time"

// Config is the root configuration structure for the server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// then overlaid with environment variables via [ApplyEnv].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Security      SecurityConfig      `yaml:"security"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tool          ToolConfig          `yaml:"tool"`
}

// ServerConfig holds transport and shutdown settings.
type ServerConfig struct {
	// Transport selects the MCP transport. Valid values: "stdio", "http".
	Transport string `yaml:"transport"`

	// ListenAddr is the TCP address the optional HTTP surface listens on
	// (health/tools/metrics) when Transport is "http".
	ListenAddr string `yaml:"listen_addr"`

	// ShutdownGraceSec bounds how long in-flight invocations are given to
	// finish cleanly once a shutdown signal arrives.
	ShutdownGraceSec float64 `yaml:"shutdown_grace_sec"`
}

// SecurityConfig holds the argument-hygiene and target-authorization caps
// shared by every tool class.
type SecurityConfig struct {
	// MaxArgsLen caps the byte length of extra_args before tokenizing.
	MaxArgsLen int `yaml:"max_args_len"`

	// MaxStdoutBytes and MaxStderrBytes cap captured subprocess output.
	MaxStdoutBytes int `yaml:"max_stdout_bytes"`
	MaxStderrBytes int `yaml:"max_stderr_bytes"`

	// DefaultTimeoutSec and DefaultConcurrency are the per-class defaults
	// used when a tool subclass does not declare its own.
	DefaultTimeoutSec  int `yaml:"default_timeout_sec"`
	DefaultConcurrency int `yaml:"default_concurrency"`
}

// CircuitBreakerConfig holds the default breaker parameters applied to every
// registered tool class (each class still gets its own breaker instance).
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// MetricsConfig controls the optional OpenTelemetry/Prometheus wiring.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is one of "text" (default) or "json".
	Format string `yaml:"format"`
}

// ToolConfig controls which tool classes are registered.
type ToolConfig struct {
	// Include, when non-empty, restricts registration to exactly these
	// class names. Exclude removes class names from whatever Include (or
	// the full built-in set, if Include is empty) would otherwise register.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Defaults returns a [Config] populated with spec-mandated defaults (spec.md
// §5's resource caps and §6's transport defaults), before any YAML or
// environment overlay is applied.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:        "stdio",
			ShutdownGraceSec: 10,
		},
		Security: SecurityConfig{
			MaxArgsLen:         2048,
			MaxStdoutBytes:     1 << 20,
			MaxStderrBytes:     256 << 10,
			DefaultTimeoutSec:  300,
			DefaultConcurrency: 2,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
