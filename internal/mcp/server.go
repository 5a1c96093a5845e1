// Package mcp exposes the fluency tools over the Model Context Protocol.
//
// A [Server] holds an explicit, enumerated table of tools keyed by name and
// serves it with the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk) over stdio or streamable HTTP.
// Calls for names outside the table are rejected; there is no free-text
// dispatch.
//
// Typical usage:
//
//	srv, err := mcp.NewServer("1.0.0", metrics, assessment.Tools(assessor)...)
//	http.Handle("/mcp", srv.HTTPHandler())
//	// or
//	err = srv.RunStdio(ctx)
//
// All methods are safe for concurrent use.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/fluency/internal/mcp/tools"
	"github.com/MrWong99/fluency/internal/observe"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "fluency"

// ErrUnknownTool is returned by [Server.Call] for a name that is not registered.
var ErrUnknownTool = errors.New("mcp: unknown tool")

// Server routes tool calls to a fixed set of built-in tools.
type Server struct {
	sdk     *mcpsdk.Server
	tools   map[string]tools.Tool
	metrics *observe.Metrics
}

// NewServer builds a server offering ts. Tool names must be unique and
// non-empty. m may be nil.
func NewServer(version string, m *observe.Metrics, ts ...tools.Tool) (*Server, error) {
	s := &Server{
		sdk: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: ServerName, Version: version},
			nil,
		),
		tools:   make(map[string]tools.Tool, len(ts)),
		metrics: m,
	}
	for _, t := range ts {
		name := t.Definition.Name
		if name == "" {
			return nil, errors.New("mcp: tool with empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("mcp: tool %q has no handler", name)
		}
		if _, dup := s.tools[name]; dup {
			return nil, fmt.Errorf("mcp: duplicate tool %q", name)
		}
		s.tools[name] = t

		schema := t.Definition.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		s.sdk.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: t.Definition.Description,
			InputSchema: schema,
		}, s.sdkHandler(name))
	}
	return s, nil
}

// ToolNames returns the registered tool names in sorted order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call executes the tool registered under name with JSON-encoded args.
// The execution is bounded by the tool's DeclaredMax when set.
func (s *Server) Call(ctx context.Context, name, args string) (string, error) {
	t, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	ctx, span := observe.StartSpan(ctx, "mcp.tool "+name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	if t.DeclaredMax > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.DeclaredMax)
		defer cancel()
	}

	start := time.Now()
	out, err := t.Handler(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		observe.Logger(ctx).Warn("mcp: tool call failed", "tool", name, "err", err)
	}
	if s.metrics != nil {
		s.metrics.RecordToolCall(ctx, name, elapsed, err)
	}
	return out, err
}

// sdkHandler adapts [Server.Call] to the SDK. Tool errors become an IsError
// result so the calling agent can see them.
func (s *Server) sdkHandler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args string
		if req != nil && req.Params != nil {
			args = string(req.Params.Arguments)
		}
		out, err := s.Call(ctx, name, args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

// RunStdio serves the tools over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.sdk.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: stdio: %w", err)
	}
	return nil
}

// Connect serves the tools on a single transport, such as one half of
// [mcpsdk.NewInMemoryTransports].
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.sdk.Connect(ctx, t, nil)
}

// HTTPHandler returns a streamable HTTP handler serving the tools.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}
