package coordinator

import (
	"sync"
	"time"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

// Session is a user's live binding to a hosting unit. Identity fields are
// fixed at creation; state fields are mutated by the hosting unit's event
// handlers and read through accessors.
type Session struct {
	UserID         string
	Tier           string
	HostingType    tier.HostingType
	HostRef        string // slot id, or "worker:<userId>" for dedicated hosting
	IsolationLevel string
	MaxConnections int
	CreatedAt      time.Time

	mu            sync.RWMutex
	authenticated bool
	paused        bool
	lastActivity  time.Time
	messageCount  uint64
}

func newSession(userID string, policy tier.Policy, hosting tier.HostingType, hostRef string, now time.Time) *Session {
	return &Session{
		UserID:         userID,
		Tier:           policy.TierName,
		HostingType:    hosting,
		HostRef:        hostRef,
		IsolationLevel: policy.IsolationLevel,
		MaxConnections: policy.MaxConnections,
		CreatedAt:      now,
		lastActivity:   now,
	}
}

// Authenticated reports whether the hosting unit has completed auth.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Paused reports whether automated responses are suppressed for this user.
func (s *Session) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// LastActivity returns the time of the last message or connect.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// MessageCount returns how many messages were sent or received.
func (s *Session) MessageCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageCount
}

func (s *Session) setAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

func (s *Session) setPaused(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = v
}

func (s *Session) recordMessage(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCount++
	s.lastActivity = now
}

// SessionInfo is a point-in-time copy of a Session.
type SessionInfo struct {
	UserID         string           `json:"user_id"`
	Tier           string           `json:"tier"`
	HostingType    tier.HostingType `json:"hosting_type"`
	HostRef        string           `json:"host_ref"`
	IsolationLevel string           `json:"isolation_level,omitempty"`
	MaxConnections int              `json:"max_connections,omitempty"`
	Authenticated  bool             `json:"authenticated"`
	Paused         bool             `json:"paused"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivity   time.Time        `json:"last_activity"`
	MessageCount   uint64           `json:"message_count"`
}

// Snapshot copies the session's current state.
func (s *Session) Snapshot() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		UserID:         s.UserID,
		Tier:           s.Tier,
		HostingType:    s.HostingType,
		HostRef:        s.HostRef,
		IsolationLevel: s.IsolationLevel,
		MaxConnections: s.MaxConnections,
		Authenticated:  s.authenticated,
		Paused:         s.paused,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.lastActivity,
		MessageCount:   s.messageCount,
	}
}

// SendResult describes an accepted outbound message.
type SendResult struct {
	MessageID   string           `json:"message_id"`
	Timestamp   time.Time        `json:"timestamp"`
	HostingType tier.HostingType `json:"hosting_type"`
	HostRef     string           `json:"host_ref"`
}
