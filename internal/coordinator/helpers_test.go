package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/AltairaLabs/chatpool/internal/chatclient/mock"
	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage/memory"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock for HostDeps.Now.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeQRStore records the latest challenge per user.
type fakeQRStore struct {
	mu    sync.Mutex
	items map[string]string
}

func newFakeQRStore() *fakeQRStore {
	return &fakeQRStore{items: make(map[string]string)}
}

func (s *fakeQRStore) Save(_ context.Context, userID, challenge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = challenge
	return nil
}

func (s *fakeQRStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
	return nil
}

func (s *fakeQRStore) Get(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[userID]
	return v, ok
}

// eventRecorder collects published session events.
type eventRecorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *eventRecorder) Publish(_ context.Context, ev SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofKind(kind SessionEventKind) []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SessionEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type poolFixture struct {
	pool    *SlotPoolManager
	factory *mock.Factory
	qr      *fakeQRStore
	pids    *memory.PIDRegistry
	events  *eventRecorder
	clock   *testClock
}

func defaultPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		UsersPerSlot:     10,
		MaxSlots:         5,
		IdleTimeout:      30 * time.Minute,
		InitTimeout:      time.Second,
		ScaleUpThreshold: 0.8,
		UnitCost:         2.5,
	}
}

func newPoolFixture(t *testing.T, hosting tier.HostingType, poolCfg config.PoolConfig) *poolFixture {
	t.Helper()
	f := &poolFixture{
		factory: mock.NewFactory(),
		qr:      newFakeQRStore(),
		pids:    memory.NewPIDRegistry(),
		events:  &eventRecorder{},
		clock:   newTestClock(),
	}
	f.pool = NewSlotPoolManager(SlotPoolConfig{
		HostingType: hosting,
		Pool:        poolCfg,
		Driver:      "mock",
		DataDir:     t.TempDir(),
		SendTimeout: time.Second,
	}, f.factory, HostDeps{
		QR:     f.qr,
		PIDs:   f.pids,
		Events: f.events,
		Logger: discardLogger(),
		Now:    f.clock.Now,
	})
	t.Cleanup(func() { _ = f.pool.Shutdown(context.Background()) })
	return f
}

func sharedPolicy() tier.Policy {
	return tier.Policy{TierName: "starter", IsolationLevel: string(tier.Shared), MaxConnections: 1}
}

func dedicatedPolicy() tier.Policy {
	return tier.Policy{TierName: "enterprise", DedicatedHost: true, MaxConnections: 5}
}
