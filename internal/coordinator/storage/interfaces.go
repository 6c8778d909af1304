package storage

import (
	"context"
	"time"
)

// QRStore persists the auth challenge a user must scan. Save overwrites any
// earlier challenge; Clear is a no-op for users without one.
type QRStore interface {
	Save(ctx context.Context, userID, challenge string) error
	Clear(ctx context.Context, userID string) error
}

// PIDRegistry records the OS processes the pool owns so external housekeeping
// does not reap them. Keys are "slot:<id>" or "worker:<userId>".
type PIDRegistry interface {
	RegisterActive(ctx context.Context, key string, pid int) error
	Unregister(ctx context.Context, key string) error
}

// ProcessEntry is one registered process.
type ProcessEntry struct {
	Key          string    `toml:"key"`
	PID          int       `toml:"pid"`
	RegisteredAt time.Time `toml:"registered_at"`
}

// ProcessLister is implemented by registries that can enumerate their entries.
type ProcessLister interface {
	List(ctx context.Context) ([]ProcessEntry, error)
}

// SlotKey is the registry key for a slot's session client process.
func SlotKey(slotID string) string {
	return "slot:" + slotID
}

// WorkerKey is the registry key for a dedicated worker process.
func WorkerKey(userID string) string {
	return "worker:" + userID
}
