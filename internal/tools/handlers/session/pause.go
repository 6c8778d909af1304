package session

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// PauseResponse reports a user's pause flag after a pause or resume
type PauseResponse struct {
	UserID string `json:"user_id"`
	Paused bool   `json:"paused"`
}

// PauseHandler implements pause_user and resume_user. The pause flag only
// suppresses automated responses; the connection stays up.
type PauseHandler struct {
	sessions    types.SessionService
	auditLogger types.AuditLogger
	pause       bool
}

// NewPauseHandler creates the pause_user handler
func NewPauseHandler(sessions types.SessionService, auditLogger types.AuditLogger) *PauseHandler {
	return &PauseHandler{sessions: sessions, auditLogger: auditLogger, pause: true}
}

// NewResumeHandler creates the resume_user handler
func NewResumeHandler(sessions types.SessionService, auditLogger types.AuditLogger) *PauseHandler {
	return &PauseHandler{sessions: sessions, auditLogger: auditLogger, pause: false}
}

func (h *PauseHandler) toolName() string {
	if h.pause {
		return config.ToolPauseUser
	}
	return config.ToolResumeUser
}

// Tool describes pause_user or resume_user
func (h *PauseHandler) Tool() mcp.Tool {
	desc := "Re-enable automated responses for a user"
	if h.pause {
		desc = "Suppress automated responses for a user without dropping the connection"
	}
	return mcp.NewTool(h.toolName(),
		mcp.WithDescription(desc),
		userIDArg(),
	)
}

// Handle implements pause_user or resume_user
func (h *PauseHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString(argUserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := h.toolName()
	h.auditLogger.LogToolCall(ctx, &types.AuditEntry{UserID: userID, ToolName: name})

	if h.pause {
		err = h.sessions.Pause(ctx, userID)
	} else {
		err = h.sessions.Resume(ctx, userID)
	}
	if err != nil {
		h.auditLogger.LogToolResult(ctx, &types.AuditEntry{UserID: userID, ToolName: name, ErrorMsg: err.Error()})
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolResult(ctx, &types.AuditEntry{UserID: userID, ToolName: name})
	return tools.JSONResult(PauseResponse{UserID: userID, Paused: h.pause}), nil
}
