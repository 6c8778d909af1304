package session

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// DisconnectHandler implements the disconnect_user tool
type DisconnectHandler struct {
	sessions    types.SessionService
	auditLogger types.AuditLogger
}

// NewDisconnectHandler creates a new disconnect handler
func NewDisconnectHandler(sessions types.SessionService, auditLogger types.AuditLogger) *DisconnectHandler {
	return &DisconnectHandler{
		sessions:    sessions,
		auditLogger: auditLogger,
	}
}

// Tool describes disconnect_user
func (h *DisconnectHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolDisconnectUser,
		mcp.WithDescription("Tear down a user's session. Unknown users are ignored"),
		userIDArg(),
	)
}

// Handle implements disconnect_user
func (h *DisconnectHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString(argUserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolCall(ctx, &types.AuditEntry{
		UserID:   userID,
		ToolName: config.ToolDisconnectUser,
	})

	if err := h.sessions.DisconnectUser(ctx, userID); err != nil {
		h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
			UserID:   userID,
			ToolName: config.ToolDisconnectUser,
			ErrorMsg: err.Error(),
		})
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
		UserID:   userID,
		ToolName: config.ToolDisconnectUser,
	})
	return mcp.NewToolResultText(fmt.Sprintf(config.MsgDisconnected, userID)), nil
}
