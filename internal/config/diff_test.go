package config_test

import (
	"testing"

	"github.com/openlab-sec/secmcp/internal/config"
)

func TestDiffConfigs_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "info"}}
	d := config.DiffConfigs(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.ToolFilterChanged {
		t.Error("expected ToolFilterChanged=false for identical configs")
	}
}

func TestDiffConfigs_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Logging: config.LoggingConfig{Level: "info"}}
	newCfg := &config.Config{Logging: config.LoggingConfig{Level: "debug"}}

	d := config.DiffConfigs(old, newCfg)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != "debug" {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiffConfigs_ToolFilterChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Tool: config.ToolConfig{Include: []string{"nmap"}}}
	newCfg := &config.Config{Tool: config.ToolConfig{Include: []string{"nmap", "hydra"}}}

	d := config.DiffConfigs(old, newCfg)
	if !d.ToolFilterChanged {
		t.Error("expected ToolFilterChanged=true")
	}
	if len(d.NewInclude) != 2 {
		t.Errorf("expected 2 included classes, got %v", d.NewInclude)
	}
}

func TestDiffConfigs_ExcludeChangeDetected(t *testing.T) {
	t.Parallel()
	old := &config.Config{Tool: config.ToolConfig{Exclude: nil}}
	newCfg := &config.Config{Tool: config.ToolConfig{Exclude: []string{"sqlmap"}}}

	d := config.DiffConfigs(old, newCfg)
	if !d.ToolFilterChanged {
		t.Error("expected ToolFilterChanged=true for exclude-only change")
	}
}

func TestDiffConfigs_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Logging: config.LoggingConfig{Level: "info"},
		Tool:    config.ToolConfig{Include: []string{"nmap"}},
	}
	newCfg := &config.Config{
		Logging: config.LoggingConfig{Level: "warn"},
		Tool:    config.ToolConfig{Include: []string{"nmap", "gobuster"}},
	}

	d := config.DiffConfigs(old, newCfg)
	if !d.LogLevelChanged || !d.ToolFilterChanged {
		t.Errorf("expected both fields changed, got %+v", d)
	}
}
