package memory

import (
	"context"
	"testing"

	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
)

func TestNewPIDRegistry(t *testing.T) {
	r := NewPIDRegistry()
	if r == nil {
		t.Fatal("expected non-nil registry")
	}
	if r.entries == nil {
		t.Error("entries map should be initialized")
	}
}

func TestRegisterActive(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		pid     int
		wantErr bool
	}{
		{"empty key", "", 100, true},
		{"zero pid", storage.WorkerKey("alice"), 0, true},
		{"valid worker", storage.WorkerKey("alice"), 100, false},
		{"valid slot", storage.SlotKey("slot-1"), 200, false},
	}

	r := NewPIDRegistry()
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.RegisterActive(ctx, tt.key, tt.pid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegisterActive() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			pid, ok := r.Lookup(tt.key)
			if !ok || pid != tt.pid {
				t.Errorf("Lookup(%s) = %d, %v; want %d", tt.key, pid, ok, tt.pid)
			}
		})
	}
}

func TestRegisterActiveReplacesPID(t *testing.T) {
	r := NewPIDRegistry()
	ctx := context.Background()
	key := storage.WorkerKey("bob")

	if err := r.RegisterActive(ctx, key, 10); err != nil {
		t.Fatalf("RegisterActive failed: %v", err)
	}
	if err := r.RegisterActive(ctx, key, 11); err != nil {
		t.Fatalf("RegisterActive failed: %v", err)
	}
	if pid, _ := r.Lookup(key); pid != 11 {
		t.Errorf("expected replaced pid 11, got %d", pid)
	}
}

func TestUnregister(t *testing.T) {
	r := NewPIDRegistry()
	ctx := context.Background()

	_ = r.RegisterActive(ctx, "slot:a", 1)
	_ = r.RegisterActive(ctx, "slot:b", 2)

	if err := r.Unregister(ctx, "slot:a"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if err := r.Unregister(ctx, "slot:missing"); err != nil {
		t.Errorf("Unregister of unknown key should be a no-op, got %v", err)
	}

	entries, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "slot:b" {
		t.Errorf("expected only slot:b to remain, got %+v", entries)
	}
}
