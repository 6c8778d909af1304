package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

var errRegistryClosed = errors.New("session registry is shut down")

// userLocks hands out one mutex per user id. Entries are dropped once no
// goroutine holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul := l.locks[userID]
	if ul == nil {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// SessionRegistry maps each connected user to its Session and routes every
// operation to the host that owns it. Connects and disconnects for one user
// are serialized.
type SessionRegistry struct {
	resolver tier.Resolver
	hosts    map[tier.HostingType]Host
	settle   time.Duration
	audit    *AuditLogger
	logger   *slog.Logger

	locks userLocks

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewSessionRegistry creates a registry routing to hosts by their hosting
// type. settle is the pause between tearing down an old session and
// connecting its replacement.
func NewSessionRegistry(
	resolver tier.Resolver,
	hosts []Host,
	settle time.Duration,
	logger *slog.Logger,
	audit *AuditLogger,
) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = NewAuditLogger(logger)
	}
	byType := make(map[tier.HostingType]Host, len(hosts))
	for _, h := range hosts {
		byType[h.HostingType()] = h
	}
	return &SessionRegistry{
		resolver: resolver,
		hosts:    byType,
		settle:   settle,
		audit:    audit,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// ConnectUser resolves the user's tier and connects them to the matching
// host. An existing session is torn down first. The pause flag carries over
// to the replacement session.
func (r *SessionRegistry) ConnectUser(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	start := time.Now()
	entry := &AuditEntry{Timestamp: start, UserID: userID, Action: "connect"}
	r.audit.LogAction(ctx, entry)

	sess, err := r.connect(ctx, userID)
	entry.Duration = time.Since(start)
	if err != nil {
		entry.ErrorMsg = err.Error()
		r.audit.LogResult(ctx, entry)
		return nil, err
	}
	entry.Tier = sess.Tier
	entry.HostingType = sess.HostingType
	entry.HostRef = sess.HostRef
	r.audit.LogResult(ctx, entry)
	return sess, nil
}

func (r *SessionRegistry) connect(ctx context.Context, userID string) (*Session, error) {
	unlock := r.locks.lock(userID)
	defer unlock()

	policy, err := r.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier for %s: %w", userID, err)
	}
	hosting, err := policy.HostingType()
	if err != nil {
		return nil, err
	}
	host := r.hosts[hosting]
	if host == nil {
		return nil, fmt.Errorf("no host configured for %s hosting", hosting)
	}

	r.mu.RLock()
	old, closed := r.sessions[userID], r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errRegistryClosed
	}

	paused := false
	if old != nil {
		paused = old.Paused()
		r.logger.InfoContext(ctx, "replacing existing session",
			"user_id", userID,
			"old_hosting_type", old.HostingType,
			"old_host_ref", old.HostRef)
		r.teardown(ctx, old)
		if r.settle > 0 {
			timer := time.NewTimer(r.settle)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}

	sess, err := host.Connect(ctx, userID, policy)
	if err != nil {
		return nil, fmt.Errorf("connect %s via %s: %w", userID, hosting, err)
	}
	if paused {
		sess.setPaused(true)
	}

	r.mu.Lock()
	r.sessions[userID] = sess
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "user connected",
		"user_id", userID,
		"tier", sess.Tier,
		"hosting_type", sess.HostingType,
		"host_ref", sess.HostRef)
	return sess, nil
}

// teardown disconnects sess from its host and drops it from the registry.
// Host errors are logged; the session is removed regardless.
func (r *SessionRegistry) teardown(ctx context.Context, sess *Session) {
	if host := r.hosts[sess.HostingType]; host != nil {
		if err := host.Disconnect(ctx, sess.UserID); err != nil {
			r.logger.WarnContext(ctx, "host disconnect failed",
				"user_id", sess.UserID,
				"hosting_type", sess.HostingType,
				"error", err)
		}
	}
	r.mu.Lock()
	if r.sessions[sess.UserID] == sess {
		delete(r.sessions, sess.UserID)
	}
	r.mu.Unlock()
}

// DisconnectUser tears down the user's session. Unknown users are a no-op.
func (r *SessionRegistry) DisconnectUser(ctx context.Context, userID string) error {
	start := time.Now()
	entry := &AuditEntry{Timestamp: start, UserID: userID, Action: "disconnect"}
	r.audit.LogAction(ctx, entry)

	unlock := r.locks.lock(userID)
	defer unlock()

	r.mu.RLock()
	sess := r.sessions[userID]
	r.mu.RUnlock()
	if sess == nil {
		r.logger.InfoContext(ctx, "disconnect for unknown user ignored", "user_id", userID)
		entry.Duration = time.Since(start)
		r.audit.LogResult(ctx, entry)
		return nil
	}

	r.teardown(ctx, sess)
	entry.Tier = sess.Tier
	entry.HostingType = sess.HostingType
	entry.HostRef = sess.HostRef
	entry.Duration = time.Since(start)
	r.audit.LogResult(ctx, entry)
	return nil
}

// SendMessage dispatches through the host of the user's session.
func (r *SessionRegistry) SendMessage(ctx context.Context, userID, to, body string) (*SendResult, error) {
	start := time.Now()
	entry := &AuditEntry{Timestamp: start, UserID: userID, Action: "send_message"}

	r.mu.RLock()
	sess := r.sessions[userID]
	r.mu.RUnlock()
	if sess == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrSessionNotFound)
	}
	host := r.hosts[sess.HostingType]
	if host == nil {
		return nil, fmt.Errorf("no host configured for %s hosting", sess.HostingType)
	}

	entry.Tier = sess.Tier
	entry.HostingType = sess.HostingType
	entry.HostRef = sess.HostRef
	r.audit.LogAction(ctx, entry)

	res, err := host.SendMessage(ctx, userID, to, body)
	entry.Duration = time.Since(start)
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	r.audit.LogResult(ctx, entry)
	return res, err
}

// Pause suppresses automated responses for the user without touching the
// connection. The flag lives in memory only.
func (r *SessionRegistry) Pause(ctx context.Context, userID string) error {
	return r.setPaused(ctx, userID, true)
}

// Resume clears the pause flag.
func (r *SessionRegistry) Resume(ctx context.Context, userID string) error {
	return r.setPaused(ctx, userID, false)
}

func (r *SessionRegistry) setPaused(ctx context.Context, userID string, paused bool) error {
	action := "resume"
	if paused {
		action = "pause"
	}
	entry := &AuditEntry{Timestamp: time.Now(), UserID: userID, Action: action}
	r.audit.LogAction(ctx, entry)

	r.mu.RLock()
	sess := r.sessions[userID]
	r.mu.RUnlock()
	if sess == nil {
		err := fmt.Errorf("user %s: %w", userID, ErrSessionNotFound)
		entry.ErrorMsg = err.Error()
		r.audit.LogResult(ctx, entry)
		return err
	}
	sess.setPaused(paused)
	entry.Tier = sess.Tier
	entry.HostingType = sess.HostingType
	entry.HostRef = sess.HostRef
	r.audit.LogResult(ctx, entry)
	return nil
}

// IsPaused reports the user's pause flag. Unknown users are not paused.
func (r *SessionRegistry) IsPaused(userID string) bool {
	r.mu.RLock()
	sess := r.sessions[userID]
	r.mu.RUnlock()
	return sess != nil && sess.Paused()
}

// Session returns the user's session, if connected.
func (r *SessionRegistry) Session(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Sessions returns a snapshot of every session ordered by user.
func (r *SessionRegistry) Sessions() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Hosts returns the registered hosts ordered by hosting type.
func (r *SessionRegistry) Hosts() []Host {
	out := make([]Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostingType() < out[j].HostingType() })
	return out
}

// Shutdown disconnects every session and then shuts every host down.
// Further connects fail.
func (r *SessionRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		unlock := r.locks.lock(sess.UserID)
		r.teardown(ctx, sess)
		unlock()
	}
	r.logger.InfoContext(ctx, "sessions disconnected", "count", len(sessions))

	var errs []error
	for _, h := range r.Hosts() {
		if err := h.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", h.HostingType(), err))
		}
	}
	return errors.Join(errs...)
}
