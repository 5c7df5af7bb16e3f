// Command secmcp runs the MCP server that exposes nmap, masscan, gobuster,
// hydra, and sqlmap as rate-limited, validated, lab-target-only tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlab-sec/secmcp/internal/config"
	"github.com/openlab-sec/secmcp/internal/observe"
	"github.com/openlab-sec/secmcp/internal/registry"
	"github.com/openlab-sec/secmcp/internal/server"
	"github.com/openlab-sec/secmcp/internal/tool"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "secmcp: %v\n", err)
		return 1
	}
	if err != nil {
		// No config file present: defaults + environment overlay are enough
		// to run (spec: every resource cap has a built-in default).
		cfg = config.Defaults()
		config.ApplyEnv(cfg)
		if verr := config.Validate(cfg); verr != nil {
			fmt.Fprintf(os.Stderr, "secmcp: %v\n", verr)
			return 1
		}
	}

	var level slog.LevelVar
	level.Set(parseLevel(cfg.Logging.Level))
	slog.SetDefault(newLogger(cfg.Logging, &level))

	slog.Info("secmcp starting",
		"config", *configPath,
		"transport", cfg.Server.Transport,
		"include", cfg.Tool.Include,
		"exclude", cfg.Tool.Exclude,
		"shutdown_grace_sec", cfg.Server.ShutdownGraceSec,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A nil interface, not a typed nil *observe.Metrics, must reach
	// registry.New — tool.New's nil check only works against the former.
	var metrics tool.MetricsSink
	if cfg.Metrics.Enabled {
		shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: "0.1.0"})
		if err != nil {
			slog.Error("failed to initialise telemetry provider", "err", err)
			return 1
		}
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				slog.Error("telemetry shutdown error", "err", err)
			}
		}()
		metrics = observe.DefaultMetrics()
	}

	reg := registry.New(cfg, metrics)
	srv := server.New(cfg, reg)

	// The file watcher only ever touches logging.level and tool.include/
	// exclude on an already-running registry (registry.SetFilter) — every
	// other config section requires a restart to take effect.
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, werr := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			diff := config.DiffConfigs(old, updated)
			if diff.LogLevelChanged {
				level.Set(parseLevel(diff.NewLogLevel))
				slog.Info("config hot-reload: log level changed", "level", diff.NewLogLevel)
			}
			if diff.ToolFilterChanged {
				reg.SetFilter(diff.NewInclude, diff.NewExclude)
				slog.Info("config hot-reload: tool filter changed", "include", diff.NewInclude, "exclude", diff.NewExclude)
			}
		})
		if werr != nil {
			slog.Warn("config watcher failed to start; continuing without hot-reload", "err", werr)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("server ready", "tool_count", len(reg.Metadata()))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process-wide logger against level, a *slog.LevelVar
// so a config hot-reload can raise or lower verbosity without rebuilding the
// handler.
func newLogger(cfg config.LoggingConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
