package config

import "slices"

// Diff describes what changed between two configs. Only fields that are
// safe to apply without a restart are tracked (spec.md §9 "Open question 2":
// runtime config changes are restricted to tool.include/exclude and
// logging.level; everything else requires a process restart to take effect).
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     string

	ToolFilterChanged bool
	NewInclude        []string
	NewExclude        []string
}

// DiffConfigs compares old and new and returns what changed among the
// fields that can be hot-reloaded.
func DiffConfigs(old, new *Config) Diff {
	var d Diff

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	if !slices.Equal(old.Tool.Include, new.Tool.Include) || !slices.Equal(old.Tool.Exclude, new.Tool.Exclude) {
		d.ToolFilterChanged = true
		d.NewInclude = new.Tool.Include
		d.NewExclude = new.Tool.Exclude
	}

	return d
}
