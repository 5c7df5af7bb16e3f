// Package server wires the registered tool classes onto the Model Context
// Protocol, owns the transport (stdio or streamable HTTP), and — when the
// HTTP transport is selected — supervises the optional /health, /tools, and
// /metrics surface alongside it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openlab-sec/secmcp/internal/config"
	"github.com/openlab-sec/secmcp/internal/health"
	"github.com/openlab-sec/secmcp/internal/observe"
	"github.com/openlab-sec/secmcp/internal/registry"
	"github.com/openlab-sec/secmcp/internal/tool"
)

// Implementation identifies this server during MCP initialize.
var Implementation = &mcp.Implementation{Name: "secmcp", Version: "0.1.0"}

// CallToolInput is the input schema shared by every registered tool class,
// matching spec §3's ToolInput shape.
type CallToolInput struct {
	// Target is a host, IPv4 address, CIDR, or URL — interpretation is
	// tool-specific. Must resolve to an authorized lab target.
	Target string `json:"target"`

	// ExtraArgs is a raw command-line-style string of additional flags,
	// validated against the tool's allow-list before use.
	ExtraArgs string `json:"extra_args,omitempty"`

	// TimeoutSec overrides the tool class's default timeout when positive.
	TimeoutSec float64 `json:"timeout_sec,omitempty"`
}

// Server owns one MCP server instance, the registry of tool classes it
// exposes, and (optionally) the HTTP surface.
type Server struct {
	cfg    *config.Config
	reg    *registry.Registry
	mcp    *mcp.Server
	health *health.Handler
}

// New builds a [Server] from cfg and a pre-populated [registry.Registry],
// registering every enabled tool class with the MCP server and wiring the
// health handler's tool inventory to the registry's metadata view.
func New(cfg *config.Config, reg *registry.Registry) *Server {
	s := &Server{
		cfg:    cfg,
		reg:    reg,
		mcp:    mcp.NewServer(Implementation, nil),
		health: health.New(health.Checker{Name: "registry", Check: checkRegistry(reg)}),
	}
	s.health.SetToolsProvider(func() any { return reg.Metadata() })
	s.health.SetTransport(cfg.Server.Transport)
	s.registerTools()
	return s
}

// checkRegistry fails readiness when no tool class is enabled — a
// misconfigured include/exclude filter that excludes everything is an
// operator error worth surfacing, not a silent empty tool list.
func checkRegistry(reg *registry.Registry) func(context.Context) error {
	return func(context.Context) error {
		for _, c := range reg.Metadata() {
			if c.Enabled {
				return nil
			}
		}
		return errors.New("no tool class is enabled")
	}
}

// registerTools adds every enabled registry entry to the MCP server under
// its class name. A class disabled at startup is never added here — the MCP
// tool list is fixed for the life of the process — but a class enabled at
// startup and later disabled via [registry.Registry.SetFilter] still stops
// answering calls, since callToolHandler re-checks Enabled on every
// invocation rather than closing over a fixed *tool.Tool.
func (s *Server) registerTools() {
	for _, info := range s.reg.Metadata() {
		if !info.Enabled {
			continue
		}
		t, ok := s.reg.Enabled(info.Name)
		if !ok {
			continue
		}
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        t.Descriptor.Name,
			Description: fmt.Sprintf("Run %s against an authorized lab target.", t.Descriptor.Name),
		}, callToolHandler(s.reg, t.Descriptor.Name))
	}
}

// callToolHandler adapts one tool class into an MCP tool handler, looking it
// up in reg by name on every call so a hot-reloaded include/exclude change
// ([registry.Registry.SetFilter]) takes effect without re-registering the
// MCP tool. The tool pipeline never returns a Go error for a runtime
// failure, so the handler only propagates programmer-misuse errors (an
// unconfigured descriptor); every other outcome — success or
// VALIDATION_ERROR/TIMEOUT/etc — is carried in the returned [tool.Output]
// and reflected onto [mcp.CallToolResult.IsError].
func callToolHandler(reg *registry.Registry, name string) func(context.Context, *mcp.CallToolRequest, CallToolInput) (*mcp.CallToolResult, *tool.Output, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CallToolInput) (*mcp.CallToolResult, *tool.Output, error) {
		ctx, span := observe.StartSpan(ctx, "tool.invoke", trace.WithAttributes(
			attribute.String("tool.name", name),
		))
		defer span.End()
		correlationID := observe.CorrelationID(ctx)

		t, ok := reg.Enabled(name)
		if !ok {
			out := &tool.Output{ErrorType: tool.ErrValidation, Error: fmt.Sprintf("tool class %q is currently disabled", name), CorrelationID: correlationID}
			logInvocation(ctx, name, in.Target, out)
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: out.Error}}}, out, nil
		}

		out, err := t.Run(ctx, tool.Input{
			Target:        in.Target,
			ExtraArgs:     in.ExtraArgs,
			TimeoutSec:    in.TimeoutSec,
			CorrelationID: correlationID,
		})
		if err != nil {
			return nil, nil, err
		}
		logInvocation(ctx, name, in.Target, out)

		text := out.Stdout
		if out.ErrorType != "" {
			text = out.Error
		}
		result := &mcp.CallToolResult{
			IsError: out.ErrorType != "",
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}
		return result, out, nil
	}
}

// logInvocation emits the single structured log line spec §6 requires per
// call: WARNING with tool/error_type/target/correlation_id on failure, INFO
// with returncode/execution_time/truncation flags on success. The logger is
// enriched with trace_id/span_id from ctx's active span.
func logInvocation(ctx context.Context, name, target string, out *tool.Output) {
	logger := observe.Logger(ctx)
	if out.ErrorType != "" {
		logger.Warn("tool invocation failed",
			"tool", name, "error_type", string(out.ErrorType), "target", target, "correlation_id", out.CorrelationID)
		return
	}
	logger.Info("tool invocation succeeded",
		"tool", name, "returncode", out.ReturnCode, "execution_time", out.ExecutionTime,
		"truncated_stdout", out.TruncatedStdout, "truncated_stderr", out.TruncatedStderr,
		"correlation_id", out.CorrelationID)
}

// Run starts the server and blocks until ctx is cancelled or a fatal
// transport error occurs. Under "stdio" transport it serves MCP over
// stdin/stdout. Under "http" transport it serves MCP over streamable HTTP at
// /mcp and, alongside it, /health, /tools, and /metrics — all torn down
// within cfg.Server.ShutdownGraceSec of ctx being cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Server.Transport == "http" {
		return s.runHTTP(ctx)
	}
	return s.runStdio(ctx)
}

func (s *Server) runStdio(ctx context.Context) error {
	slog.Info("serving MCP over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) runHTTP(ctx context.Context) error {
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		nil,
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	s.health.Register(mux)
	if s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("serving MCP over streamable HTTP", "listen_addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grace := time.Duration(s.cfg.Server.ShutdownGraceSec * float64(time.Second))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
