package coordinator

import (
	"context"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/cache"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// registryAdapter exposes the SessionRegistry to tool handlers
type registryAdapter struct {
	registry *SessionRegistry
}

func newRegistryAdapter(r *SessionRegistry) *registryAdapter {
	return &registryAdapter{registry: r}
}

func (a *registryAdapter) ConnectUser(ctx context.Context, userID string) (*types.SessionView, error) {
	sess, err := a.registry.ConnectUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sessionView(sess.Snapshot()), nil
}

func (a *registryAdapter) DisconnectUser(ctx context.Context, userID string) error {
	return a.registry.DisconnectUser(ctx, userID)
}

func (a *registryAdapter) Pause(ctx context.Context, userID string) error {
	return a.registry.Pause(ctx, userID)
}

func (a *registryAdapter) Resume(ctx context.Context, userID string) error {
	return a.registry.Resume(ctx, userID)
}

func (a *registryAdapter) GetSession(userID string) (*types.SessionView, bool) {
	sess, ok := a.registry.Session(userID)
	if !ok {
		return nil, false
	}
	return sessionView(sess.Snapshot()), true
}

func (a *registryAdapter) SendMessage(ctx context.Context, userID, to, body string) (*types.SendReceipt, error) {
	res, err := a.registry.SendMessage(ctx, userID, to, body)
	if err != nil {
		return nil, err
	}
	return &types.SendReceipt{
		UserID:      userID,
		To:          to,
		MessageID:   res.MessageID,
		Timestamp:   res.Timestamp,
		HostingType: string(res.HostingType),
		HostRef:     res.HostRef,
	}, nil
}

func sessionView(info SessionInfo) *types.SessionView {
	return &types.SessionView{
		UserID:         info.UserID,
		Tier:           info.Tier,
		HostingType:    string(info.HostingType),
		HostRef:        info.HostRef,
		IsolationLevel: info.IsolationLevel,
		MaxConnections: info.MaxConnections,
		Authenticated:  info.Authenticated,
		Paused:         info.Paused,
		MessageCount:   info.MessageCount,
		CreatedAt:      info.CreatedAt,
		LastActivity:   info.LastActivity,
	}
}

// challengeAdapter exposes the challenge cache to the status tool
type challengeAdapter struct {
	reader cache.ChallengeReader
}

func (a *challengeAdapter) PendingChallenge(ctx context.Context, userID string) (*types.Challenge, bool) {
	c, err := a.reader.Get(ctx, userID)
	if err != nil {
		return nil, false
	}
	return &types.Challenge{Payload: c.Payload, ExpiresAt: c.ExpiresAt}, true
}

// statsAdapter exposes the metrics aggregator to the stats tool
type statsAdapter struct {
	metrics *MetricsAggregator
}

func (a *statsAdapter) PoolStats() any {
	return a.metrics.Collect()
}

// auditLoggerAdapter records tool calls in the coordinator audit log
type auditLoggerAdapter struct {
	auditLogger *AuditLogger
}

func newAuditLoggerAdapter(al *AuditLogger) *auditLoggerAdapter {
	return &auditLoggerAdapter{auditLogger: al}
}

func (a *auditLoggerAdapter) LogToolCall(ctx context.Context, entry *types.AuditEntry) {
	a.auditLogger.LogAction(ctx, &AuditEntry{
		Timestamp: time.Now(),
		UserID:    entry.UserID,
		Action:    "tool:" + entry.ToolName,
	})
}

func (a *auditLoggerAdapter) LogToolResult(ctx context.Context, entry *types.AuditEntry) {
	a.auditLogger.LogResult(ctx, &AuditEntry{
		Timestamp: time.Now(),
		UserID:    entry.UserID,
		Action:    "tool:" + entry.ToolName,
		ErrorMsg:  entry.ErrorMsg,
	})
}
