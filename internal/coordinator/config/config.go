package config

import (
	"errors"
	"fmt"
	"time"
)

// Restart backoff modes for dedicated workers.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the coordinator configuration. It is loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	DataDir         string `mapstructure:"data_dir"`
	IPCSocket       string `mapstructure:"ipc_socket"`
	WorkerBinary    string `mapstructure:"worker_binary"`
	ClientDriver    string `mapstructure:"client_driver"`
	TierFile        string `mapstructure:"tier_file"`
	PIDRegistryFile string `mapstructure:"pid_registry_file"`
	LogLevel        string `mapstructure:"log_level"`

	HealthInterval    time.Duration `mapstructure:"health_interval"`
	OptimizerInterval time.Duration `mapstructure:"optimizer_interval"`
	ReconnectSettle   time.Duration `mapstructure:"reconnect_settle"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	QRTTL             time.Duration `mapstructure:"qr_ttl"`

	// Pools is keyed by pooled hosting type: shared, semi-dedicated, enterprise-shared.
	Pools     map[string]PoolConfig `mapstructure:"pools"`
	Dedicated DedicatedConfig       `mapstructure:"dedicated"`
	MCP       MCPConfig             `mapstructure:"mcp"`
}

// PoolConfig sizes one slot pool.
type PoolConfig struct {
	UsersPerSlot     int           `mapstructure:"users_per_slot"`
	MaxSlots         int           `mapstructure:"max_slots"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	InitTimeout      time.Duration `mapstructure:"init_timeout"`
	ScaleUpThreshold float64       `mapstructure:"scale_up_threshold"`
	UnitCost         float64       `mapstructure:"unit_cost"`
}

// DedicatedConfig controls the dedicated worker manager.
type DedicatedConfig struct {
	MaxWorkers        int           `mapstructure:"max_workers"`
	SpawnTimeout      time.Duration `mapstructure:"spawn_timeout"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	RestartBackoff    string        `mapstructure:"restart_backoff"`
	RestartDelay      time.Duration `mapstructure:"restart_delay"`
	MaxRestartDelay   time.Duration `mapstructure:"max_restart_delay"`
	RestartMultiplier float64       `mapstructure:"restart_multiplier"`
	UnitCost          float64       `mapstructure:"unit_cost"`
}

// MCPConfig selects how the admin tool surface is served.
type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPAddr  string `mapstructure:"http_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:           "/var/lib/chatpool",
		IPCSocket:         "/run/chatpool/ipc.sock",
		WorkerBinary:      "chatpool-worker",
		ClientDriver:      "loopback",
		LogLevel:          "info",
		HealthInterval:    DefaultHealthInterval,
		OptimizerInterval: DefaultOptimizerInterval,
		ReconnectSettle:   DefaultReconnectSettle,
		SendTimeout:       DefaultSendTimeout,
		QRTTL:             DefaultQRTTL,
		Pools:             DefaultPools(),
		Dedicated: DedicatedConfig{
			MaxWorkers:        200,
			SpawnTimeout:      DefaultSpawnTimeout,
			ShutdownGrace:     DefaultShutdownGrace,
			RestartBackoff:    BackoffFixed,
			RestartDelay:      DefaultRestartDelay,
			MaxRestartDelay:   DefaultMaxRestartDelay,
			RestartMultiplier: 2.0,
			UnitCost:          4.0,
		},
		MCP: MCPConfig{
			Transport: TransportStdio,
			HTTPAddr:  ":8080",
		},
	}
}

// DefaultPools returns the default sizing for each pooled hosting type.
func DefaultPools() map[string]PoolConfig {
	return map[string]PoolConfig{
		"shared": {
			UsersPerSlot:     10,
			MaxSlots:         50,
			IdleTimeout:      DefaultSharedIdleTimeout,
			InitTimeout:      DefaultSlotInitTimeout,
			ScaleUpThreshold: 0.8,
			UnitCost:         0.5,
		},
		"semi-dedicated": {
			UsersPerSlot:     3,
			MaxSlots:         30,
			IdleTimeout:      DefaultSemiDedicatedIdleTimeout,
			InitTimeout:      DefaultSlotInitTimeout,
			ScaleUpThreshold: 0.8,
			UnitCost:         1.5,
		},
		"enterprise-shared": {
			UsersPerSlot:     5,
			MaxSlots:         20,
			IdleTimeout:      DefaultEnterpriseIdleTimeout,
			InitTimeout:      DefaultSlotInitTimeout,
			ScaleUpThreshold: 0.7,
			UnitCost:         2.5,
		},
	}
}

// ApplyDefaults fills zero-valued fields from Default. Pool entries named in a
// config file are completed field by field from the default pool of the same name.
func (c *Config) ApplyDefaults() {
	d := Default()
	setString(&c.DataDir, d.DataDir)
	setString(&c.IPCSocket, d.IPCSocket)
	setString(&c.WorkerBinary, d.WorkerBinary)
	setString(&c.ClientDriver, d.ClientDriver)
	setString(&c.LogLevel, d.LogLevel)
	setDuration(&c.HealthInterval, d.HealthInterval)
	setDuration(&c.OptimizerInterval, d.OptimizerInterval)
	setDuration(&c.SendTimeout, d.SendTimeout)
	setDuration(&c.QRTTL, d.QRTTL)

	if c.Pools == nil {
		c.Pools = make(map[string]PoolConfig)
	}
	for name, def := range d.Pools {
		p := c.Pools[name]
		if p.UsersPerSlot == 0 {
			p.UsersPerSlot = def.UsersPerSlot
		}
		if p.MaxSlots == 0 {
			p.MaxSlots = def.MaxSlots
		}
		setDuration(&p.IdleTimeout, def.IdleTimeout)
		setDuration(&p.InitTimeout, def.InitTimeout)
		if p.ScaleUpThreshold == 0 {
			p.ScaleUpThreshold = def.ScaleUpThreshold
		}
		if p.UnitCost == 0 {
			p.UnitCost = def.UnitCost
		}
		c.Pools[name] = p
	}

	dd := &c.Dedicated
	if dd.MaxWorkers == 0 {
		dd.MaxWorkers = d.Dedicated.MaxWorkers
	}
	setDuration(&dd.SpawnTimeout, d.Dedicated.SpawnTimeout)
	setDuration(&dd.ShutdownGrace, d.Dedicated.ShutdownGrace)
	setString(&dd.RestartBackoff, d.Dedicated.RestartBackoff)
	setDuration(&dd.RestartDelay, d.Dedicated.RestartDelay)
	setDuration(&dd.MaxRestartDelay, d.Dedicated.MaxRestartDelay)
	if dd.RestartMultiplier == 0 {
		dd.RestartMultiplier = d.Dedicated.RestartMultiplier
	}
	if dd.UnitCost == 0 {
		dd.UnitCost = d.Dedicated.UnitCost
	}

	setString(&c.MCP.Transport, d.MCP.Transport)
	setString(&c.MCP.HTTPAddr, d.MCP.HTTPAddr)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.IPCSocket == "" {
		return errors.New("ipc_socket is required")
	}
	for name, p := range c.Pools {
		if p.UsersPerSlot <= 0 {
			return fmt.Errorf("pools.%s.users_per_slot must be positive", name)
		}
		if p.MaxSlots <= 0 {
			return fmt.Errorf("pools.%s.max_slots must be positive", name)
		}
		if p.IdleTimeout <= 0 {
			return fmt.Errorf("pools.%s.idle_timeout must be positive", name)
		}
		if p.ScaleUpThreshold <= 0 || p.ScaleUpThreshold > 1 {
			return fmt.Errorf("pools.%s.scale_up_threshold must be in (0, 1]", name)
		}
	}
	if c.Dedicated.MaxWorkers <= 0 {
		return errors.New("dedicated.max_workers must be positive")
	}
	switch c.Dedicated.RestartBackoff {
	case BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("dedicated.restart_backoff must be %q or %q", BackoffFixed, BackoffExponential)
	}
	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("mcp.transport must be %q or %q", TransportStdio, TransportHTTP)
	}
	if c.ReconnectSettle < 0 {
		return errors.New("reconnect_settle cannot be negative")
	}
	return nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
