package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
)

var (
	errKeyEmpty   = errors.New("process key cannot be empty")
	errInvalidPID = errors.New("pid must be positive")
)

// PIDRegistry implements storage.PIDRegistry using an in-memory map
type PIDRegistry struct {
	mu      sync.RWMutex
	entries map[string]storage.ProcessEntry
	now     func() time.Time
}

// NewPIDRegistry creates a new in-memory protected-PID registry
func NewPIDRegistry() *PIDRegistry {
	return &PIDRegistry{
		entries: make(map[string]storage.ProcessEntry),
		now:     time.Now,
	}
}

// RegisterActive adds or replaces the process registered under key
func (r *PIDRegistry) RegisterActive(ctx context.Context, key string, pid int) error {
	if key == "" {
		return errKeyEmpty
	}
	if pid <= 0 {
		return errInvalidPID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = storage.ProcessEntry{
		Key:          key,
		PID:          pid,
		RegisteredAt: r.now(),
	}
	return nil
}

// Unregister removes key; unknown keys are ignored
func (r *PIDRegistry) Unregister(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

// Lookup returns the pid registered under key
func (r *PIDRegistry) Lookup(key string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e.PID, ok
}

// List returns all entries sorted by key
func (r *PIDRegistry) List(ctx context.Context) ([]storage.ProcessEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]storage.ProcessEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
