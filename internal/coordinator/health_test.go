package coordinator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

func TestHealthRecoversBrokenSlots(t *testing.T) {
	f := newPoolFixture(t, tier.Shared, defaultPoolConfig())
	connectUsers(t, f.pool, 2)
	f.factory.Last().EmitReady()

	monitor := NewHealthMonitor([]*SlotPoolManager{f.pool}, nil, time.Hour, discardLogger())

	report := monitor.Check(context.Background())
	assert.Equal(t, 1, report.HealthySlots)
	assert.Empty(t, report.Reinitializing)

	slotID := f.pool.Slots()[0].ID
	f.factory.Last().EmitDisconnected("stream closed")

	report = monitor.Check(context.Background())
	assert.Equal(t, []string{slotID}, report.Reinitializing)
	monitor.Wait()

	assert.Equal(t, 2, f.factory.Count())
	slot := f.pool.Slots()[0]
	assert.Equal(t, SlotInitializing, slot.Status)
	assert.Len(t, slot.Users, 2)

	report = monitor.Check(context.Background())
	assert.Empty(t, report.Reinitializing)
}

func TestHealthSkipsSlotsAlreadyRecovering(t *testing.T) {
	f := newPoolFixture(t, tier.Shared, defaultPoolConfig())
	connectUsers(t, f.pool, 1)
	f.factory.Last().EmitAuthFailed("logged out")
	slotID := f.pool.Slots()[0].ID

	monitor := NewHealthMonitor([]*SlotPoolManager{f.pool}, nil, time.Hour, discardLogger())
	monitor.inflight[slotID] = true

	report := monitor.Check(context.Background())
	assert.Empty(t, report.Reinitializing)
	assert.Equal(t, 1, f.factory.Count())
}

func TestHealthWorkers(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.spawner.nextPID = os.Getpid() - 1
	f.connectReady(t, "alive")
	f.spawner.nextPID = 1 << 30
	f.connectReady(t, "vanished")

	monitor := NewHealthMonitor(nil, f.mgr, time.Hour, discardLogger())
	report := monitor.Check(context.Background())
	assert.Equal(t, []string{"vanished"}, report.Vanished)
	assert.Empty(t, report.Respawning)

	f.mgr.mu.Lock()
	f.mgr.workers["alive"].status = WorkerError
	f.mgr.workers["alive"].channel = nil
	f.mgr.mu.Unlock()

	report = monitor.Check(context.Background())
	assert.Equal(t, []string{"alive"}, report.Respawning)
	require.Eventually(t, func() bool { return f.spawner.count() == 3 }, waitFor, 5*time.Millisecond)
}

func TestHealthRunStopsWithContext(t *testing.T) {
	monitor := NewHealthMonitor(nil, nil, 5*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}
