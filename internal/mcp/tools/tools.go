// Package tools defines the shared [Tool] type used by the MCP tool packages
// of the fluency service. Each sub-package exports a constructor function that
// returns a slice of [Tool] values ready for registration with the MCP server.
package tools

import (
	"context"
	"time"
)

// Definition is the agent-facing schema of a tool.
type Definition struct {
	// Name is the unique tool name agents call it by.
	Name string

	// Description tells the agent when to use the tool.
	Description string

	// Parameters is the JSON Schema of the argument object.
	Parameters map[string]any
}

// Tool represents a built-in tool ready for registration with the MCP server.
//
// Each Tool carries its agent-facing schema together with the handler that is
// invoked when an agent calls the tool.
type Tool struct {
	Definition Definition

	// Handler executes the tool with JSON-encoded args and returns the
	// result text on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)

	// DeclaredMax bounds a single execution. Zero means no bound beyond the
	// caller's context.
	DeclaredMax time.Duration
}
