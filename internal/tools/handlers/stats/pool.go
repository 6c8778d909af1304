// Package stats provides the pool statistics tool handler
package stats

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// PoolHandler implements the pool_stats tool
type PoolHandler struct {
	source types.StatsSource
}

// NewPoolHandler creates a new pool stats handler
func NewPoolHandler(source types.StatsSource) *PoolHandler {
	return &PoolHandler{source: source}
}

// Tool describes pool_stats
func (h *PoolHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolPoolStats,
		mcp.WithDescription("Report slot utilization, connections per tier, worker counts and estimated cost"),
	)
}

// Handle implements pool_stats
func (h *PoolHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return tools.JSONResult(h.source.PoolStats()), nil
}
