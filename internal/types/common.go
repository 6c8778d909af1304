// Package types provides shared types used between the coordinator and its
// tool handlers
package types

import (
	"context"
	"time"
)

// SessionView is the caller-facing view of a user's session
type SessionView struct {
	UserID         string    `json:"user_id"`
	Tier           string    `json:"tier"`
	HostingType    string    `json:"hosting_type"`
	HostRef        string    `json:"host_ref"`
	IsolationLevel string    `json:"isolation_level,omitempty"`
	MaxConnections int       `json:"max_connections,omitempty"`
	Authenticated  bool      `json:"authenticated"`
	Paused         bool      `json:"paused"`
	MessageCount   uint64    `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// SendReceipt acknowledges an outbound message
type SendReceipt struct {
	UserID      string    `json:"user_id"`
	To          string    `json:"to"`
	MessageID   string    `json:"message_id"`
	Timestamp   time.Time `json:"timestamp"`
	HostingType string    `json:"hosting_type"`
	HostRef     string    `json:"host_ref"`
}

// Challenge is a pending auth challenge awaiting a scan
type Challenge struct {
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse is returned by the session status tool
type StatusResponse struct {
	Session   *SessionView `json:"session"`
	Challenge *Challenge   `json:"challenge,omitempty"`
}

// AuditEntry represents an audit log entry for tool calls and results
type AuditEntry struct {
	UserID    string
	ToolName  string
	Arguments map[string]interface{}
	ErrorMsg  string
}

// SessionService provides the session operations exposed as tools
type SessionService interface {
	ConnectUser(ctx context.Context, userID string) (*SessionView, error)
	DisconnectUser(ctx context.Context, userID string) error
	Pause(ctx context.Context, userID string) error
	Resume(ctx context.Context, userID string) error
	GetSession(userID string) (*SessionView, bool)
}

// MessageSender dispatches outbound messages
type MessageSender interface {
	SendMessage(ctx context.Context, userID, to, body string) (*SendReceipt, error)
}

// ChallengeSource reads pending auth challenges
type ChallengeSource interface {
	PendingChallenge(ctx context.Context, userID string) (*Challenge, bool)
}

// StatsSource produces a JSON-serializable snapshot of pool metrics
type StatsSource interface {
	PoolStats() any
}

// AuditLogger provides audit logging operations
type AuditLogger interface {
	LogToolCall(ctx context.Context, entry *AuditEntry)
	LogToolResult(ctx context.Context, entry *AuditEntry)
}
