// Package breaker implements the per-tool circuit breaker that gates
// subprocess execution. It is a classic three-state breaker
// (closed → open → half-open) driven by consecutive failure counts rather
// than a sliding error-rate window: a single tool invocation either succeeds
// or fails, and what the substrate cares about is runs of consecutive
// failures against a dependency that has stopped working, not a noisy rate.
//
// All exported methods are safe for concurrent use.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// Closed is the normal operating state — calls are allowed through.
	Closed State = iota
	// Open rejects every call until RecoveryTimeout has elapsed since the
	// breaker tripped.
	Open
	// HalfOpen permits exactly one probe call to test recovery.
	HalfOpen
)

// String returns the lower_snake_case name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name identifies the breaker in log lines (typically the tool class name).
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state before the breaker opens.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before a single
	// probe call is allowed through in the half-open state.
	RecoveryTimeout time.Duration

	// Enabled disables breaker gating entirely when false: Allow always
	// returns true and RecordSuccess/RecordFailure are no-ops. Used when
	// config.circuit_breaker.enabled is false.
	Enabled bool
}

// CircuitBreaker gates calls to a single tool class.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	enabled          bool

	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	probeInFlight bool
}

// New creates a [CircuitBreaker] from cfg. A FailureThreshold <= 0 defaults
// to 5; a non-positive RecoveryTimeout defaults to 30s.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		enabled:          cfg.Enabled,
		state:            Closed,
	}
}

// Allow reports whether a call should proceed. It must be called exactly
// once per invocation attempt, before the subprocess is spawned; a true
// result in the half-open state reserves the single probe slot for the
// caller, so any concurrent caller arriving before the probe resolves is
// rejected exactly as if the breaker were open.
func (cb *CircuitBreaker) Allow() bool {
	if !cb.enabled {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true

	case Open:
		if time.Since(cb.openedAt) < cb.recoveryTimeout {
			return false
		}
		cb.state = HalfOpen
		cb.probeInFlight = true
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
		return true

	case HalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true

	default:
		return true
	}
}

// RecordSuccess reports a successful call. In the closed state it resets the
// failure counter; in the half-open state it closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.state = Closed
		cb.failureCount = 0
		cb.probeInFlight = false
		slog.Info("circuit breaker closed after successful probe", "name", cb.name)
	case Closed:
		cb.failureCount = 0
	}
}

// RecordFailure reports a failed call. In the closed state it increments the
// failure counter and opens the breaker once FailureThreshold is reached; in
// the half-open state any failure immediately reopens it.
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.state = Open
		cb.openedAt = time.Now()
		cb.probeInFlight = false
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)

	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = Open
			cb.openedAt = time.Now()
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failureCount,
			)
		}
	}
}

// Cancel undoes the bookkeeping side effect of a prior Allow() call without
// recording a success or failure. It exists for the one case the pipeline
// must handle specially: a validation error discovered after Allow() was
// already called (breaker check happens before argument validation in the
// pipeline, per spec). Validation errors must never trip the breaker, but in
// the half-open state Allow() reserves the single probe slot — if nothing
// ever released it, the breaker would wedge in half-open forever. Cancel
// releases that reservation while leaving CLOSED/OPEN untouched (Allow has
// no side effects to undo in those states).
func (cb *CircuitBreaker) Cancel() {
	if !cb.enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == HalfOpen {
		cb.probeInFlight = false
	}
}

// State returns the current state. Unlike Allow, it does not claim the
// half-open probe slot or mutate opened_at — it is a read-only observation
// used for metrics and the registry's metadata view.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == Open && time.Since(cb.openedAt) >= cb.recoveryTimeout {
		return HalfOpen
	}
	return cb.state
}
