// Package observe provides application-wide observability primitives for
// the MCP security-tool server: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openlab-sec/secmcp/internal/tool"
)

// meterName is the instrumentation scope name used for all server metrics.
const meterName = "github.com/openlab-sec/secmcp"

// Metrics holds all OpenTelemetry metric instruments for the server, and
// implements [tool.MetricsSink]. All fields are safe for concurrent use —
// the underlying OTel types handle their own synchronisation.
type Metrics struct {
	// ToolExecutionDuration tracks per-invocation wall-clock latency,
	// labelled by tool class.
	ToolExecutionDuration metric.Float64Histogram

	// ToolCalls counts invocations, labelled by tool, status
	// (success/failure), and error_type (empty on success).
	ToolCalls metric.Int64Counter

	// ActiveInvocations tracks in-flight subprocess invocations per tool.
	ActiveInvocations metric.Int64UpDownCounter

	// HTTPRequestDuration tracks the optional health/tools/metrics HTTP
	// surface's request latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), sized for
// subprocess invocations that range from sub-second preflight rejections to
// the 1800s sqlmap ceiling.
var latencyBuckets = []float64{
	0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolExecutionDuration, err = m.Float64Histogram("secmcp.tool.execution.duration",
		metric.WithDescription("Latency of a single tool invocation, excluding concurrency-gate wait time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("secmcp.tool.calls",
		metric.WithDescription("Total tool invocations by tool, status, and error_type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveInvocations, err = m.Int64UpDownCounter("secmcp.tool.active_invocations",
		metric.WithDescription("Number of subprocess invocations currently in flight, by tool."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("secmcp.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInvocation implements [tool.MetricsSink].
func (m *Metrics) RecordInvocation(ctx context.Context, toolName, status string, errorType tool.ErrorType) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("status", status),
			attribute.String("error_type", string(errorType)),
		),
	)
}

// RecordDuration implements [tool.MetricsSink].
func (m *Metrics) RecordDuration(ctx context.Context, toolName string, seconds float64) {
	m.ToolExecutionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tool", toolName)),
	)
}

// IncActive implements [tool.MetricsSink].
func (m *Metrics) IncActive(ctx context.Context, toolName string) {
	m.ActiveInvocations.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", toolName)))
}

// DecActive implements [tool.MetricsSink].
func (m *Metrics) DecActive(ctx context.Context, toolName string) {
	m.ActiveInvocations.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", toolName)))
}
