package coordinator

import (
	"time"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

// PoolStats describes one slot pool.
type PoolStats struct {
	Slots         int     `json:"slots"`
	ReadySlots    int     `json:"ready_slots"`
	Users         int     `json:"users"`
	Capacity      int     `json:"capacity"`
	Utilization   float64 `json:"utilization"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// WorkerStats describes the dedicated workers.
type WorkerStats struct {
	Workers       int                  `json:"workers"`
	ByStatus      map[WorkerStatus]int `json:"by_status"`
	EstimatedCost float64              `json:"estimated_cost"`
}

// PoolMetrics is a derived, read-only view of the whole pool.
type PoolMetrics struct {
	Pools             map[tier.HostingType]PoolStats `json:"pools"`
	Dedicated         WorkerStats                    `json:"dedicated"`
	ConnectionsByTier map[string]int                 `json:"connections_by_tier"`
	TotalConnections  int                            `json:"total_connections"`
	EstimatedCost     float64                        `json:"estimated_cost"`
	CollectedAt       time.Time                      `json:"collected_at"`
}

// MetricsAggregator computes PoolMetrics on demand.
type MetricsAggregator struct {
	registry *SessionRegistry
	pools    []*SlotPoolManager
	workers  *DedicatedWorkerManager
	now      func() time.Time
}

// NewMetricsAggregator creates an aggregator. workers may be nil.
func NewMetricsAggregator(registry *SessionRegistry, pools []*SlotPoolManager, workers *DedicatedWorkerManager) *MetricsAggregator {
	return &MetricsAggregator{
		registry: registry,
		pools:    pools,
		workers:  workers,
		now:      time.Now,
	}
}

// Collect snapshots every pool, worker and session.
func (a *MetricsAggregator) Collect() PoolMetrics {
	metrics := PoolMetrics{
		Pools:             make(map[tier.HostingType]PoolStats, len(a.pools)),
		ConnectionsByTier: make(map[string]int),
		Dedicated:         WorkerStats{ByStatus: make(map[WorkerStatus]int)},
		CollectedAt:       a.now(),
	}

	for _, pool := range a.pools {
		var stats PoolStats
		for _, slot := range pool.Slots() {
			stats.Slots++
			stats.Users += len(slot.Users)
			stats.Capacity += slot.Capacity
			if slot.Status == SlotReady {
				stats.ReadySlots++
			}
		}
		if stats.Capacity > 0 {
			stats.Utilization = float64(stats.Users) / float64(stats.Capacity)
		}
		stats.EstimatedCost = float64(stats.Slots) * pool.cfg.Pool.UnitCost
		metrics.Pools[pool.HostingType()] = stats
		metrics.EstimatedCost += stats.EstimatedCost
	}

	if a.workers != nil {
		for _, w := range a.workers.Workers() {
			metrics.Dedicated.Workers++
			metrics.Dedicated.ByStatus[w.Status]++
		}
		metrics.Dedicated.EstimatedCost = float64(metrics.Dedicated.Workers) * a.workers.cfg.UnitCost
		metrics.EstimatedCost += metrics.Dedicated.EstimatedCost
	}

	if a.registry != nil {
		for _, sess := range a.registry.Sessions() {
			metrics.ConnectionsByTier[sess.Tier]++
			metrics.TotalConnections++
		}
	}
	return metrics
}
