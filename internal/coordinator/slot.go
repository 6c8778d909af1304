package coordinator

import (
	"sort"
	"time"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

// SlotStatus is the lifecycle state of a slot's session client.
type SlotStatus string

const (
	SlotInitializing SlotStatus = "initializing"
	SlotReady        SlotStatus = "ready"
	SlotError        SlotStatus = "error"
	SlotDisconnected SlotStatus = "disconnected"
)

// Slot is one session client multiplexed across up to capacity users.
// All fields are guarded by the owning SlotPoolManager's mutex.
type Slot struct {
	ID          string
	hosting     tier.HostingType
	storagePath string
	capacity    int
	createdAt   time.Time

	client       chatclient.Client
	generation   uint64 // bumped when the client is replaced; stale events are dropped
	provisioned  bool   // client created and Initialize returned
	recovering   bool
	status       SlotStatus
	authFailed   bool
	challenge    string // pending auth challenge while initializing
	users        map[string]*Session
	lastActivity time.Time
	pid          int
}

func (s *Slot) usable() bool {
	return s.provisioned && !s.recovering &&
		(s.status == SlotReady || s.status == SlotInitializing)
}

func (s *Slot) hasRoom() bool {
	return len(s.users) < s.capacity
}

func (s *Slot) members() []*Session {
	out := make([]*Session, 0, len(s.users))
	for _, sess := range s.users {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// better reports whether s is a better allocation target than other:
// ready beats initializing, then fuller slots win so spare slots stay empty
// and can be reclaimed.
func (s *Slot) better(other *Slot) bool {
	if (s.status == SlotReady) != (other.status == SlotReady) {
		return s.status == SlotReady
	}
	if len(s.users) != len(other.users) {
		return len(s.users) > len(other.users)
	}
	if !s.createdAt.Equal(other.createdAt) {
		return s.createdAt.Before(other.createdAt)
	}
	return s.ID < other.ID
}

// SlotInfo is a point-in-time copy of a slot.
type SlotInfo struct {
	ID           string           `json:"id"`
	HostingType  tier.HostingType `json:"hosting_type"`
	Status       SlotStatus       `json:"status"`
	Users        []string         `json:"users"`
	Capacity     int              `json:"capacity"`
	PID          int              `json:"pid,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
}

func (s *Slot) info() SlotInfo {
	users := make([]string, 0, len(s.users))
	for id := range s.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return SlotInfo{
		ID:           s.ID,
		HostingType:  s.hosting,
		Status:       s.status,
		Users:        users,
		Capacity:     s.capacity,
		PID:          s.pid,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}
