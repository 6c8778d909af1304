package config

import "time"

// Default timing configurations used throughout the coordinator
const (
	// DefaultHealthInterval is how often the health monitor sweeps hosting units
	DefaultHealthInterval = 30 * time.Second

	// DefaultOptimizerInterval is how often idle slots are reclaimed
	DefaultOptimizerInterval = 5 * time.Minute

	// DefaultSendTimeout bounds a single outbound message dispatch
	DefaultSendTimeout = 30 * time.Second

	// DefaultReconnectSettle is the pause between tearing down a session and reconnecting it
	DefaultReconnectSettle = 2 * time.Second

	// DefaultSlotInitTimeout bounds session client initialization for a new slot
	DefaultSlotInitTimeout = 60 * time.Second

	// DefaultSpawnTimeout is how long a spawned worker has to attach over IPC
	DefaultSpawnTimeout = 15 * time.Second

	// DefaultRestartDelay is the delay before respawning a crashed worker
	DefaultRestartDelay = 5 * time.Second

	// DefaultMaxRestartDelay caps exponential respawn backoff
	DefaultMaxRestartDelay = 2 * time.Minute

	// DefaultShutdownGrace is how long a worker may take to exit after a disconnect command
	DefaultShutdownGrace = 5 * time.Second

	// DefaultQRTTL is how long a pending auth challenge is retained
	DefaultQRTTL = 2 * time.Minute

	// DefaultSharedIdleTimeout is the idle eviction threshold for shared slots
	DefaultSharedIdleTimeout = 30 * time.Minute

	// DefaultSemiDedicatedIdleTimeout is the idle eviction threshold for semi-dedicated slots
	DefaultSemiDedicatedIdleTimeout = 15 * time.Minute

	// DefaultEnterpriseIdleTimeout is the idle eviction threshold for enterprise-shared slots
	DefaultEnterpriseIdleTimeout = 10 * time.Minute
)
