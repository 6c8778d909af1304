// Package session provides the session lifecycle tool handlers
package session

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/types"
)

const argUserID = "user_id"

func userIDArg() mcp.ToolOption {
	return mcp.WithString(argUserID,
		mcp.Required(),
		mcp.Description("End user identifier"),
	)
}

// ConnectResponse is returned by the connect tool
type ConnectResponse struct {
	Message string             `json:"message"`
	Session *types.SessionView `json:"session"`
}

// ConnectHandler implements the connect_user tool
type ConnectHandler struct {
	sessions    types.SessionService
	auditLogger types.AuditLogger
}

// NewConnectHandler creates a new connect handler
func NewConnectHandler(sessions types.SessionService, auditLogger types.AuditLogger) *ConnectHandler {
	return &ConnectHandler{
		sessions:    sessions,
		auditLogger: auditLogger,
	}
}

// Tool describes connect_user
func (h *ConnectHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolConnectUser,
		mcp.WithDescription("Connect a user to the pool for their tier, replacing any existing session"),
		userIDArg(),
	)
}

// Handle implements connect_user
func (h *ConnectHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString(argUserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolCall(ctx, &types.AuditEntry{
		UserID:   userID,
		ToolName: config.ToolConnectUser,
	})

	view, err := h.sessions.ConnectUser(ctx, userID)
	if err != nil {
		h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
			UserID:   userID,
			ToolName: config.ToolConnectUser,
			ErrorMsg: err.Error(),
		})
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
		UserID:   userID,
		ToolName: config.ToolConnectUser,
	})
	return tools.JSONResult(ConnectResponse{
		Message: fmt.Sprintf(config.MsgConnected, userID, view.HostingType, view.HostRef),
		Session: view,
	}), nil
}
