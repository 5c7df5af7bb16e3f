// Package registry holds the build-time list of tool classes the server can
// expose, and turns it into a filtered, constructed set of [tool.Tool]
// instances at startup (spec §4.5; spec §9's "dynamic module discovery"
// redesigned as an explicit table instead of namespace/reflection walking).
package registry

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/openlab-sec/secmcp/internal/breaker"
	"github.com/openlab-sec/secmcp/internal/config"
	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/tools/gobuster"
	"github.com/openlab-sec/secmcp/internal/tools/hydra"
	"github.com/openlab-sec/secmcp/internal/tools/masscan"
	"github.com/openlab-sec/secmcp/internal/tools/nmap"
	"github.com/openlab-sec/secmcp/internal/tools/sqlmap"
)

// Constructor returns one tool class's immutable descriptor and hook set.
type Constructor func() (tool.Descriptor, tool.Hooks)

// builtins is the explicit, build-time set of tool classes this server can
// expose. Adding a tool class means adding one line here — no namespace
// scanning or reflection is involved.
var builtins = []Constructor{
	nmapConstructor,
	masscanConstructor,
	gobusterConstructor,
	hydraConstructor,
	sqlmapConstructor,
}

func nmapConstructor() (tool.Descriptor, tool.Hooks)    { return nmap.Descriptor(), nmap.Hooks() }
func masscanConstructor() (tool.Descriptor, tool.Hooks) { return masscan.Descriptor(), masscan.Hooks() }
func gobusterConstructor() (tool.Descriptor, tool.Hooks) {
	return gobuster.Descriptor(), gobuster.Hooks()
}
func hydraConstructor() (tool.Descriptor, tool.Hooks)  { return hydra.Descriptor(), hydra.Hooks() }
func sqlmapConstructor() (tool.Descriptor, tool.Hooks) { return sqlmap.Descriptor(), sqlmap.Hooks() }

// Entry is one registered, fully constructed tool class: its Tool executor
// plus whether it is currently enabled (not filtered out by include/exclude).
type Entry struct {
	Tool    *tool.Tool
	Enabled bool
}

// Registry holds every built-in tool class after include/exclude filtering,
// each constructed exactly once (its breaker and semaphore are created at
// this point, not lazily per invocation — spec §5's ownership rule).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// New builds a [Registry] from the built-in tool classes, applying
// cfg.Tool.Include/Exclude and filling any zero-valued descriptor cap with
// the process-wide defaults from cfg.Security. metrics is shared by every
// constructed [tool.Tool]; a nil metrics falls back to [tool.NoopMetrics].
func New(cfg *config.Config, metrics tool.MetricsSink) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(builtins))}

	for _, construct := range builtins {
		desc, hooks := construct()
		applyDefaults(&desc, cfg)

		enabled := isEnabled(desc.Name, cfg.Tool.Include, cfg.Tool.Exclude)

		cb := breaker.New(breaker.Config{
			Name:             desc.Name,
			FailureThreshold: desc.CircuitBreakerFailureThreshold,
			RecoveryTimeout:  desc.CircuitBreakerRecoveryTimeout,
			Enabled:          desc.CircuitBreakerEnabled,
		})
		sem := semaphore.NewWeighted(int64(desc.Concurrency))

		r.entries[desc.Name] = Entry{
			Tool:    tool.New(desc, hooks, cb, sem, metrics),
			Enabled: enabled,
		}
		r.order = append(r.order, desc.Name)
	}
	sort.Strings(r.order)

	return r
}

// applyDefaults fills zero-valued descriptor fields from cfg.Security so a
// tool class only needs to declare the caps it actually wants to override.
func applyDefaults(desc *tool.Descriptor, cfg *config.Config) {
	if desc.Concurrency <= 0 {
		desc.Concurrency = cfg.Security.DefaultConcurrency
	}
	if desc.DefaultTimeoutSec <= 0 {
		desc.DefaultTimeoutSec = float64(cfg.Security.DefaultTimeoutSec)
	}
	if desc.MaxArgsLen <= 0 {
		desc.MaxArgsLen = cfg.Security.MaxArgsLen
	}
	if desc.MaxStdoutBytes <= 0 {
		desc.MaxStdoutBytes = int64(cfg.Security.MaxStdoutBytes)
	}
	if desc.MaxStderrBytes <= 0 {
		desc.MaxStderrBytes = int64(cfg.Security.MaxStderrBytes)
	}
	if desc.CircuitBreakerFailureThreshold <= 0 {
		desc.CircuitBreakerFailureThreshold = cfg.CircuitBreaker.FailureThreshold
	}
	if desc.CircuitBreakerRecoveryTimeout <= 0 {
		desc.CircuitBreakerRecoveryTimeout = cfg.CircuitBreaker.RecoveryTimeout
	}
	if !cfg.CircuitBreaker.Enabled {
		desc.CircuitBreakerEnabled = false
	}
}

// isEnabled applies spec §4.5's include/exclude semantics: a non-empty
// include list restricts registration to exactly those names; exclude
// always removes a name regardless of include.
func isEnabled(name string, include, exclude []string) bool {
	for _, ex := range exclude {
		if ex == name {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, in := range include {
		if in == name {
			return true
		}
	}
	return false
}

// Lookup returns the named entry and whether it exists at all (regardless
// of Enabled — disabled-but-registered tools stay visible for Metadata).
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Enabled returns the tool executor for name if it exists and is enabled.
func (r *Registry) Enabled(name string) (*tool.Tool, bool) {
	e, ok := r.Lookup(name)
	if !ok || !e.Enabled {
		return nil, false
	}
	return e.Tool, true
}

// SetFilter re-evaluates include/exclude against the existing, already
// constructed tool classes (their breakers, semaphores, and in-flight
// invocations are left untouched) — the hot-reloadable half of spec §9's
// "only track changes safe to hot-reload" discipline. A tool class hidden
// by a prior filter and re-enabled here becomes callable again immediately,
// though it only reappears in an MCP client's tool list on its next
// tools/list call against a freshly started server (the MCP tool set itself
// is registered once at startup).
func (r *Registry) SetFilter(include, exclude []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		e.Enabled = isEnabled(name, include, exclude)
		r.entries[name] = e
	}
}

// ClassInfo is one row of the [Metadata] view — spec §4.5 step 4's published
// metadata (command, concurrency, timeout, allowed flags, breaker settings,
// enabled).
type ClassInfo struct {
	Name                           string        `json:"name"`
	Enabled                        bool          `json:"enabled"`
	Command                        string        `json:"command"`
	Concurrency                    int           `json:"concurrency"`
	DefaultTimeoutSec              float64       `json:"default_timeout_sec"`
	AllowedFlags                   []string      `json:"allowed_flags"`
	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailureThreshold int           `json:"circuit_breaker_failure_threshold"`
	CircuitBreakerRecoveryTimeout  time.Duration `json:"circuit_breaker_recovery_timeout"`
}

// Metadata returns every registered tool class, in deterministic name
// order, for the /tools HTTP endpoint and MCP listing (spec §4.5: disabled
// classes stay visible so operators can see what was filtered out).
func (r *Registry) Metadata() []ClassInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClassInfo, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		desc := e.Tool.Descriptor
		out = append(out, ClassInfo{
			Name:                           name,
			Enabled:                        e.Enabled,
			Command:                        desc.CommandName,
			Concurrency:                    desc.Concurrency,
			DefaultTimeoutSec:              desc.DefaultTimeoutSec,
			AllowedFlags:                   desc.AllowedFlags,
			CircuitBreakerEnabled:          desc.CircuitBreakerEnabled,
			CircuitBreakerFailureThreshold: desc.CircuitBreakerFailureThreshold,
			CircuitBreakerRecoveryTimeout:  desc.CircuitBreakerRecoveryTimeout,
		})
	}
	return out
}
