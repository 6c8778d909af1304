package session

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// StatusHandler implements the session_status tool
type StatusHandler struct {
	sessions   types.SessionService
	challenges types.ChallengeSource
}

// NewStatusHandler creates a new status handler. challenges may be nil.
func NewStatusHandler(sessions types.SessionService, challenges types.ChallengeSource) *StatusHandler {
	return &StatusHandler{
		sessions:   sessions,
		challenges: challenges,
	}
}

// Tool describes session_status
func (h *StatusHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolSessionStatus,
		mcp.WithDescription("Report a user's session state and any auth challenge waiting to be scanned"),
		userIDArg(),
	)
}

// Handle implements session_status
func (h *StatusHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString(argUserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view, ok := h.sessions.GetSession(userID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf(config.MsgUnknownUser, userID)), nil
	}

	resp := types.StatusResponse{Session: view}
	if h.challenges != nil && !view.Authenticated {
		if challenge, ok := h.challenges.PendingChallenge(ctx, userID); ok {
			resp.Challenge = challenge
		}
	}
	return tools.JSONResult(resp), nil
}
