package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

// OptimizerReport summarizes one optimizer sweep.
type OptimizerReport struct {
	Evicted  map[tier.HostingType][]string
	ScaledUp []tier.HostingType
}

// PoolOptimizer periodically reclaims idle empty slots and adds a slot to
// pools running hot.
type PoolOptimizer struct {
	pools    []*SlotPoolManager
	interval time.Duration
	logger   *slog.Logger
}

// NewPoolOptimizer creates an optimizer over pools.
func NewPoolOptimizer(pools []*SlotPoolManager, interval time.Duration, logger *slog.Logger) *PoolOptimizer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = config.DefaultOptimizerInterval
	}
	return &PoolOptimizer{
		pools:    pools,
		interval: interval,
		logger:   logger.With("component", "optimizer"),
	}
}

// Run sweeps every interval until ctx is done.
func (o *PoolOptimizer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep evicts idle slots and scales up saturated pools once.
func (o *PoolOptimizer) Sweep(ctx context.Context) OptimizerReport {
	report := OptimizerReport{Evicted: make(map[tier.HostingType][]string)}

	for _, pool := range o.pools {
		hosting := pool.HostingType()
		if evicted := pool.EvictIdle(ctx); len(evicted) > 0 {
			report.Evicted[hosting] = evicted
			o.logger.InfoContext(ctx, "reclaimed idle slots", "pool", hosting, "count", len(evicted))
		}

		scaled, err := pool.ScaleUp(ctx)
		if err != nil {
			o.logger.ErrorContext(ctx, "scale up failed", "pool", hosting, "error", err)
			continue
		}
		if scaled {
			report.ScaledUp = append(report.ScaledUp, hosting)
		}
	}
	return report
}
