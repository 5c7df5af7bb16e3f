package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/openlab-sec/secmcp/internal/breaker"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// DefaultMaxStdoutBytes and DefaultMaxStderrBytes are the process-wide
// output caps used when a [Descriptor] does not override them.
const (
	DefaultMaxStdoutBytes int64 = 1 << 20   // 1 MiB
	DefaultMaxStderrBytes int64 = 256 << 10 // 256 KiB
)

// killGrace is how long a polite SIGTERM is given before SIGKILL on timeout.
const killGrace = 2 * time.Second

// Tool is the concrete, shared executor for one registered tool class. It
// combines a [Descriptor], its [Hooks], and the class's owned
// [breaker.CircuitBreaker] and semaphore (created once at registration,
// per spec §3's ownership rules — never lazily keyed off a type).
type Tool struct {
	Descriptor Descriptor
	Hooks      Hooks
	Breaker    *breaker.CircuitBreaker
	Sem        *semaphore.Weighted
	Metrics    MetricsSink
}

// New constructs a [Tool]. metrics may be nil, in which case [NoopMetrics]
// is used.
func New(d Descriptor, h Hooks, cb *breaker.CircuitBreaker, sem *semaphore.Weighted, metrics MetricsSink) *Tool {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Tool{Descriptor: d, Hooks: h, Breaker: cb, Sem: sem, Metrics: metrics}
}

// Run performs the fourteen-step execution pipeline (spec §4.3). It never
// returns a non-nil error for a runtime failure — all failures are packaged
// into the returned *Output. A non-nil error return indicates programmer
// misuse (e.g. calling Run with no command configured).
func (t *Tool) Run(ctx context.Context, in Input) (*Output, error) {
	if t.Descriptor.CommandName == "" {
		return nil, errors.New("tool: descriptor has no command_name configured")
	}

	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	// 1. Resolve command.
	path, err := exec.LookPath(t.Descriptor.CommandName)
	if err != nil {
		out := (&ErrorContext{
			ErrorType: ErrNotFound,
			Message:   fmt.Sprintf("command %q not found on PATH", t.Descriptor.CommandName),
			Timestamp: time.Now(),
			ToolName:  t.Descriptor.Name,
			Target:    in.Target,
		}).apply(correlationID, 0)
		t.recordMetrics(ctx, out)
		return out, nil
	}

	// 2. Pre-flight validation hook. Breaker untouched on failure.
	if t.Hooks.Preflight != nil {
		if ec := t.Hooks.Preflight(in); ec != nil {
			ec.Timestamp = time.Now()
			ec.ToolName = t.Descriptor.Name
			ec.Target = in.Target
			out := ec.apply(correlationID, 0)
			t.recordMetrics(ctx, out)
			return out, nil
		}
	} else if !validator.IsLabTarget(in.Target) {
		out := (&ErrorContext{
			ErrorType:          ErrValidation,
			Message:            fmt.Sprintf("target %q is not an authorized lab target", in.Target),
			RecoverySuggestion: "use an RFC1918/loopback address, a private CIDR, or a *.lab.internal hostname",
			Timestamp:          time.Now(),
			ToolName:           t.Descriptor.Name,
			Target:             in.Target,
		}).apply(correlationID, 0)
		t.recordMetrics(ctx, out)
		return out, nil
	}

	// 3. Breaker check.
	if !t.Breaker.Allow() {
		out := (&ErrorContext{
			ErrorType: ErrCircuitOpen,
			Message:   fmt.Sprintf("circuit breaker for %q is open", t.Descriptor.Name),
			Timestamp: time.Now(),
			ToolName:  t.Descriptor.Name,
			Target:    in.Target,
		}).apply(correlationID, 0)
		t.recordMetrics(ctx, out)
		return out, nil
	}

	// 4. Concurrency gate. Gate wait time is excluded from execution_time.
	if err := t.Sem.Acquire(ctx, 1); err != nil {
		t.Breaker.Cancel()
		out := (&ErrorContext{
			ErrorType: ErrUnknown,
			Message:   fmt.Sprintf("concurrency gate: %v", err),
			Timestamp: time.Now(),
			ToolName:  t.Descriptor.Name,
			Target:    in.Target,
		}).apply(correlationID, 0)
		t.recordMetrics(ctx, out)
		return out, nil
	}
	defer t.Sem.Release(1)

	t.Metrics.IncActive(ctx, t.Descriptor.Name)
	defer t.Metrics.DecActive(ctx, t.Descriptor.Name)

	start := time.Now()

	// 5. Argument pipeline: validate → tokenize → allow-list.
	maxArgsLen := t.Descriptor.MaxArgsLen
	normalized, err := validator.ValidateExtraArgs(in.ExtraArgs, maxArgsLen)
	if err != nil {
		t.Breaker.Cancel()
		return t.validationFailure(ctx, in, correlationID, start, err), nil
	}
	tokens, err := validator.Tokenize(normalized)
	if err != nil {
		t.Breaker.Cancel()
		return t.validationFailure(ctx, in, correlationID, start, err), nil
	}
	if err := validator.EnforceAllowList(tokens, t.Descriptor.AllowedFlags); err != nil {
		t.Breaker.Cancel()
		return t.validationFailure(ctx, in, correlationID, start, err), nil
	}

	// 6. Argument optimization (subclass hook). Optimizer output is
	// re-validated through the allow-list — it must not smuggle in a
	// disallowed flag under the cover of an "optimization".
	if t.Hooks.Optimize != nil {
		optimized := t.Hooks.Optimize(tokens)
		if err := validator.EnforceAllowList(optimized, t.Descriptor.AllowedFlags); err != nil {
			t.Breaker.Cancel()
			return t.validationFailure(ctx, in, correlationID, start, err), nil
		}
		tokens = optimized
	}

	// 7. Command assembly.
	var args []string
	if t.Hooks.AssembleArgs != nil {
		args = t.Hooks.AssembleArgs(tokens, in.Target)
	} else {
		args = append(append([]string{}, tokens...), in.Target)
	}

	timeout := time.Duration(t.Descriptor.DefaultTimeoutSec * float64(time.Second))
	if in.TimeoutSec > 0 {
		timeout = time.Duration(in.TimeoutSec * float64(time.Second))
	}

	// 8-10. Spawn, supervise, capture + truncate.
	maxStdout := t.Descriptor.MaxStdoutBytes
	if maxStdout <= 0 {
		maxStdout = DefaultMaxStdoutBytes
	}
	maxStderr := t.Descriptor.MaxStderrBytes
	if maxStderr <= 0 {
		maxStderr = DefaultMaxStderrBytes
	}

	result := t.spawnAndSupervise(ctx, path, args, timeout, maxStdout, maxStderr)
	executionTime := time.Since(start).Seconds()

	out := &Output{
		Stdout:          result.stdout,
		Stderr:          result.stderr,
		TruncatedStdout: result.truncatedStdout,
		TruncatedStderr: result.truncatedStderr,
		TimedOut:        result.timedOut,
		CorrelationID:   correlationID,
		ExecutionTime:   clampExecutionTime(executionTime),
	}

	// 11. Classify.
	switch {
	case result.timedOut:
		out.ReturnCode = 124
		out.ErrorType = ErrTimeout
		out.Error = fmt.Sprintf("%q timed out after %s", t.Descriptor.Name, timeout)
	case result.spawnErr != nil:
		out.ReturnCode = 1
		out.ErrorType = ErrExecution
		out.Error = result.spawnErr.Error()
	case result.returnCode != 0:
		out.ReturnCode = result.returnCode
		out.ErrorType = ErrExecution
		out.Error = fmt.Sprintf("%q exited with code %d", t.Descriptor.Name, result.returnCode)
	default:
		out.ReturnCode = 0
	}

	// 12. Report to breaker. Timeout counts as failure.
	if out.ErrorType == "" {
		t.Breaker.RecordSuccess()
	} else {
		t.Breaker.RecordFailure()
	}

	// 13. Metrics.
	t.recordMetrics(ctx, out)

	// 14. Return.
	return out, nil
}

// validationFailure builds the VALIDATION_ERROR output for an argument
// pipeline failure (step 5/6). The caller is responsible for calling
// t.Breaker.Cancel() first, since validation errors must never be reported
// as a breaker success or failure.
func (t *Tool) validationFailure(ctx context.Context, in Input, correlationID string, start time.Time, cause error) *Output {
	out := (&ErrorContext{
		ErrorType:          ErrValidation,
		Message:            cause.Error(),
		RecoverySuggestion: "check extra_args against the tool's flag allow-list and the metacharacter deny set",
		Timestamp:          time.Now(),
		ToolName:           t.Descriptor.Name,
		Target:             in.Target,
	}).apply(correlationID, time.Since(start).Seconds())
	t.recordMetrics(ctx, out)
	return out
}

func (t *Tool) recordMetrics(ctx context.Context, out *Output) {
	status := "success"
	if out.ErrorType != "" {
		status = "failure"
	}
	t.Metrics.RecordInvocation(ctx, t.Descriptor.Name, status, out.ErrorType)
	t.Metrics.RecordDuration(ctx, t.Descriptor.Name, out.ExecutionTime)
}

// supervisionResult holds everything spawnAndSupervise discovers about one
// subprocess run.
type supervisionResult struct {
	stdout, stderr                 string
	truncatedStdout, truncatedStderr bool
	timedOut                        bool
	returnCode                      int
	spawnErr                        error
}

// spawnAndSupervise launches path with args under a minimal sanitized
// environment, no stdin, and pipes for stdout/stderr (spec §4.3 step 8),
// waits up to timeout (step 9, polite SIGTERM then forceful SIGKILL), and
// captures output up to the given caps (step 10).
func (t *Tool) spawnAndSupervise(ctx context.Context, path string, args []string, timeout time.Duration, maxStdout, maxStderr int64) supervisionResult {
	cmd := exec.Command(path, args...)
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
	}
	cmd.Stdin = nil

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return supervisionResult{spawnErr: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return supervisionResult{spawnErr: err}
	}

	if err := cmd.Start(); err != nil {
		return supervisionResult{spawnErr: err}
	}

	stdoutCh := make(chan capturedStream, 1)
	stderrCh := make(chan capturedStream, 1)
	go func() { stdoutCh <- captureStream(stdoutPipe, maxStdout) }()
	go func() { stderrCh <- captureStream(stderrPipe, maxStderr) }()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var timedOut bool
	var waitErr error

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		timedOut = true
		waitErr = terminateThenKill(cmd, waitCh)
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-waitCh
	}

	out := <-stdoutCh
	errStream := <-stderrCh

	result := supervisionResult{
		stdout:            out.data,
		stderr:            errStream.data,
		truncatedStdout:   out.truncated,
		truncatedStderr:   errStream.truncated,
		timedOut:          timedOut,
	}

	if timedOut {
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.returnCode = exitErr.ExitCode()
	} else if waitErr != nil {
		result.spawnErr = waitErr
	}
	return result
}

// terminateThenKill sends SIGTERM and waits killGrace for the process to
// exit before escalating to SIGKILL.
func terminateThenKill(cmd *exec.Cmd, waitCh <-chan error) error {
	if cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-waitCh:
		return err
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		return <-waitCh
	}
}

type capturedStream struct {
	data      string
	truncated bool
}

// captureStream reads r up to cap+1 bytes so it can distinguish "exactly
// cap bytes" from "more than cap bytes" in a single pass, decoding with
// UTF-8 replacement for invalid bytes. Once truncated, it keeps draining r
// to io.Discard: a process that writes past the cap would otherwise block
// on a full OS pipe buffer once the limited reader stops reading, and
// cmd.Wait() would never observe its real exit.
func captureStream(r io.Reader, cap int64) capturedStream {
	limited := io.LimitReader(r, cap+1)
	data, _ := io.ReadAll(limited)
	truncated := int64(len(data)) > cap
	if truncated {
		data = data[:cap]
		_, _ = io.Copy(io.Discard, r)
	}
	return capturedStream{
		data:      strings.ToValidUTF8(string(data), "�"),
		truncated: truncated,
	}
}
