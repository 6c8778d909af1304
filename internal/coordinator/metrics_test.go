package coordinator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

func TestMetricsCollect(t *testing.T) {
	pool := newPoolFixture(t, tier.Shared, defaultPoolConfig())
	workers := newWorkerFixture(t, nil)
	registry := NewSessionRegistry(prefixResolver, []Host{pool.pool, workers.mgr}, 0, discardLogger(), nil)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := registry.ConnectUser(ctx, fmt.Sprintf("user-%02d", i))
		require.NoError(t, err)
	}
	_, err := registry.ConnectUser(ctx, "vip-carol")
	require.NoError(t, err)
	pool.factory.Clients()[0].EmitReady()

	metrics := NewMetricsAggregator(registry, []*SlotPoolManager{pool.pool}, workers.mgr).Collect()

	shared := metrics.Pools[tier.Shared]
	assert.Equal(t, 2, shared.Slots)
	assert.Equal(t, 1, shared.ReadySlots)
	assert.Equal(t, 11, shared.Users)
	assert.Equal(t, 20, shared.Capacity)
	assert.InDelta(t, 0.55, shared.Utilization, 1e-9)
	assert.InDelta(t, 5.0, shared.EstimatedCost, 1e-9)

	assert.Equal(t, 1, metrics.Dedicated.Workers)
	assert.Equal(t, 1, metrics.Dedicated.ByStatus[WorkerRunning])
	assert.InDelta(t, 10.0, metrics.Dedicated.EstimatedCost, 1e-9)

	assert.Equal(t, 12, metrics.TotalConnections)
	assert.Equal(t, 11, metrics.ConnectionsByTier["starter"])
	assert.Equal(t, 1, metrics.ConnectionsByTier["enterprise"])
	assert.InDelta(t, 15.0, metrics.EstimatedCost, 1e-9)
	assert.False(t, metrics.CollectedAt.IsZero())
}

func TestMetricsWithoutWorkers(t *testing.T) {
	metrics := NewMetricsAggregator(nil, nil, nil).Collect()

	assert.Empty(t, metrics.Pools)
	assert.Equal(t, 0, metrics.Dedicated.Workers)
	assert.Equal(t, 0, metrics.TotalConnections)
	assert.Zero(t, metrics.EstimatedCost)
}
