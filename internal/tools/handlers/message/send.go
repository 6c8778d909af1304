// Package message provides the outbound messaging tool handler
package message

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// SendHandler implements the send_message tool
type SendHandler struct {
	sender      types.MessageSender
	auditLogger types.AuditLogger
}

// NewSendHandler creates a new send handler
func NewSendHandler(sender types.MessageSender, auditLogger types.AuditLogger) *SendHandler {
	return &SendHandler{
		sender:      sender,
		auditLogger: auditLogger,
	}
}

// Tool describes send_message
func (h *SendHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolSendMessage,
		mcp.WithDescription("Send a chat message through a user's session"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Sending user"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient address on the chat network"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Message text"),
		),
	)
}

// Handle implements send_message
func (h *SendHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := request.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := request.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolCall(ctx, &types.AuditEntry{
		UserID:    userID,
		ToolName:  config.ToolSendMessage,
		Arguments: map[string]interface{}{"to": to, "body_len": len(body)},
	})

	receipt, err := h.sender.SendMessage(ctx, userID, to, body)
	if err != nil {
		h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
			UserID:   userID,
			ToolName: config.ToolSendMessage,
			ErrorMsg: err.Error(),
		})
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.auditLogger.LogToolResult(ctx, &types.AuditEntry{
		UserID:   userID,
		ToolName: config.ToolSendMessage,
	})
	return tools.JSONResult(receipt), nil
}
