package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
)

// HealthReport summarizes one health sweep.
type HealthReport struct {
	HealthySlots   int
	Reinitializing []string // slot ids handed to async recovery
	Respawning     []string // user ids whose worker respawn was re-armed
	Vanished       []string // user ids whose running worker pid no longer exists
}

// HealthMonitor periodically looks for broken slots and workers and kicks
// off their recovery. It never evicts users; recovery failures are logged
// and retried on the next sweep.
type HealthMonitor struct {
	pools    []*SlotPoolManager
	workers  *DedicatedWorkerManager
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewHealthMonitor creates a monitor over pools and workers. workers may be nil.
func NewHealthMonitor(pools []*SlotPoolManager, workers *DedicatedWorkerManager, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = config.DefaultHealthInterval
	}
	return &HealthMonitor{
		pools:    pools,
		workers:  workers,
		interval: interval,
		logger:   logger.With("component", "health"),
		inflight: make(map[string]bool),
	}
}

// Run sweeps every interval until ctx is done, then waits for recoveries in flight.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := h.Check(ctx)
			if len(report.Reinitializing)+len(report.Respawning)+len(report.Vanished) > 0 {
				h.logger.InfoContext(ctx, "health sweep",
					"healthy_slots", report.HealthySlots,
					"reinitializing", len(report.Reinitializing),
					"respawning", len(report.Respawning),
					"vanished", len(report.Vanished))
			}
		}
	}
}

// Check runs one sweep. Slot recoveries continue in the background; use
// Wait to block until they finish.
func (h *HealthMonitor) Check(ctx context.Context) HealthReport {
	var report HealthReport

	for _, pool := range h.pools {
		for _, slot := range pool.Slots() {
			switch slot.Status {
			case SlotError, SlotDisconnected:
				if h.recoverSlot(ctx, pool, slot.ID) {
					report.Reinitializing = append(report.Reinitializing, slot.ID)
				}
			case SlotReady:
				report.HealthySlots++
			}
		}
	}

	if h.workers != nil {
		for _, w := range h.workers.Workers() {
			switch w.Status {
			case WorkerError:
				if h.workers.EnsureRunning(w.UserID) {
					report.Respawning = append(report.Respawning, w.UserID)
				}
			case WorkerRunning:
				if w.PID > 0 && !processAlive(w.PID) {
					// The watcher reaps it and schedules the respawn.
					h.logger.WarnContext(ctx, "worker process missing", "user_id", w.UserID, "pid", w.PID)
					report.Vanished = append(report.Vanished, w.UserID)
				}
			}
		}
	}
	return report
}

func (h *HealthMonitor) recoverSlot(ctx context.Context, pool *SlotPoolManager, slotID string) bool {
	h.mu.Lock()
	if h.inflight[slotID] {
		h.mu.Unlock()
		return false
	}
	h.inflight[slotID] = true
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.inflight, slotID)
			h.mu.Unlock()
		}()

		rctx := context.WithoutCancel(ctx)
		if err := pool.Reinitialize(rctx, slotID); err != nil {
			h.logger.ErrorContext(rctx, "slot recovery failed", "slot_id", slotID, "error", err)
			return
		}
		h.logger.InfoContext(rctx, "slot recovery started", "slot_id", slotID)
	}()
	return true
}

// Wait blocks until every recovery started by Check has returned.
func (h *HealthMonitor) Wait() {
	h.wg.Wait()
}
