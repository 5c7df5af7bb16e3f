package tool

import "context"

// MetricsSink is the capability trait the pipeline records execution metrics
// through. It degrades to [NoopMetrics] when no metrics backend is wired,
// per spec §9's "mixed sync/async + optional library availability"
// redesign guidance: selection of a real vs. no-op sink is a startup
// concern, never a per-call branch.
type MetricsSink interface {
	// RecordInvocation increments the execution counter for tool, labelled
	// by status ("success" or "failure") and errorType (empty on success).
	RecordInvocation(ctx context.Context, tool, status string, errorType ErrorType)

	// RecordDuration observes the execution duration histogram for tool.
	RecordDuration(ctx context.Context, tool string, seconds float64)

	// IncActive/DecActive track the in-flight invocation gauge for tool.
	IncActive(ctx context.Context, tool string)
	DecActive(ctx context.Context, tool string)
}

// NoopMetrics is a [MetricsSink] that discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordInvocation(context.Context, string, string, ErrorType) {}
func (NoopMetrics) RecordDuration(context.Context, string, float64)             {}
func (NoopMetrics) IncActive(context.Context, string)                          {}
func (NoopMetrics) DecActive(context.Context, string)                          {}
