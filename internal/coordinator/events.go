package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

// SessionEventKind enumerates events published for a user's session.
type SessionEventKind string

const (
	SessionQR           SessionEventKind = "qr"
	SessionReady        SessionEventKind = "ready"
	SessionAuthFailed   SessionEventKind = "auth_failed"
	SessionDisconnected SessionEventKind = "disconnected"
	SessionMessage      SessionEventKind = "message"
)

// SessionEvent is delivered to the layer above the pool (automation, API).
// Paused mirrors the session's pause flag so consumers can suppress
// automated replies without a second lookup.
type SessionEvent struct {
	Kind        SessionEventKind
	UserID      string
	HostingType tier.HostingType
	HostRef     string
	Challenge   string
	Reason      string
	Message     *chatclient.IncomingMessage
	Paused      bool
	At          time.Time
}

// EventSink receives session events. Publish must not block for long: it is
// called from client event handlers.
type EventSink interface {
	Publish(ctx context.Context, ev SessionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev SessionEvent)

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, ev SessionEvent) {
	f(ctx, ev)
}

// LogSink writes every event to a logger. It is the default sink when no
// consumer is wired.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs events.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs ev.
func (s *LogSink) Publish(ctx context.Context, ev SessionEvent) {
	attrs := []any{
		"kind", ev.Kind,
		"user_id", ev.UserID,
		"hosting_type", ev.HostingType,
		"host_ref", ev.HostRef,
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Message != nil {
		attrs = append(attrs, "from", ev.Message.From, "paused", ev.Paused)
	}
	s.logger.InfoContext(ctx, "session_event", attrs...)
}

func sessionEvent(kind SessionEventKind, sess *Session, now time.Time) SessionEvent {
	return SessionEvent{
		Kind:        kind,
		UserID:      sess.UserID,
		HostingType: sess.HostingType,
		HostRef:     sess.HostRef,
		Paused:      sess.Paused(),
		At:          now,
	}
}
