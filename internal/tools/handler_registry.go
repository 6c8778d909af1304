// Package tools holds the admin tool definitions and the registry that binds
// them to handlers
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHandlerFunc is a function that handles a tool call
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Handler is implemented by every tool handler: it describes its tool and serves calls to it
type Handler interface {
	Tool() mcp.Tool
	Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type entry struct {
	tool    mcp.Tool
	handler ToolHandlerFunc
}

// ToolHandlerRegistry maps tool names to their definitions and handler functions
type ToolHandlerRegistry struct {
	entries map[string]entry
}

// NewToolHandlerRegistry creates a registry holding the given handlers
func NewToolHandlerRegistry(handlers ...Handler) *ToolHandlerRegistry {
	r := &ToolHandlerRegistry{
		entries: make(map[string]entry),
	}
	for _, h := range handlers {
		r.Register(h.Tool(), h.Handle)
	}
	return r
}

// Register adds or replaces the handler for a tool
func (r *ToolHandlerRegistry) Register(tool mcp.Tool, handler ToolHandlerFunc) {
	r.entries[tool.Name] = entry{tool: tool, handler: handler}
}

// GetHandler returns the handler function for a given tool name
func (r *ToolHandlerRegistry) GetHandler(toolName string) (ToolHandlerFunc, error) {
	e, ok := r.entries[toolName]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool: %s", toolName)
	}
	return e.handler, nil
}

// Tools returns every registered tool definition ordered by name
func (r *ToolHandlerRegistry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// JSONResult renders v as an indented JSON text result
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
