package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

// AuditEntry records one caller-facing operation on a user's session.
type AuditEntry struct {
	Timestamp   time.Time
	UserID      string
	Action      string
	Tier        string
	HostingType tier.HostingType
	HostRef     string
	Duration    time.Duration
	ErrorMsg    string
}

// AuditLogger writes audit records for registry operations
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogAction logs an operation as it is requested
func (al *AuditLogger) LogAction(ctx context.Context, entry *AuditEntry) {
	al.logger.InfoContext(ctx, "session_action",
		"user_id", entry.UserID,
		"action", entry.Action,
		"timestamp", entry.Timestamp,
	)
}

// LogResult logs the outcome of an operation
func (al *AuditLogger) LogResult(ctx context.Context, entry *AuditEntry) {
	if entry.ErrorMsg != "" {
		al.logger.ErrorContext(ctx, "session_action_error",
			"user_id", entry.UserID,
			"action", entry.Action,
			"error", entry.ErrorMsg,
			"duration_ms", entry.Duration.Milliseconds(),
		)
		return
	}
	al.logger.InfoContext(ctx, "session_action_result",
		"user_id", entry.UserID,
		"action", entry.Action,
		"tier", entry.Tier,
		"hosting_type", entry.HostingType,
		"host_ref", entry.HostRef,
		"duration_ms", entry.Duration.Milliseconds(),
	)
}
