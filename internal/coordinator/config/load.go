package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CHATPOOL_DEDICATED_MAX_WORKERS.
const EnvPrefix = "CHATPOOL"

// Load reads the config file at path (optional) over the built-in defaults and
// applies environment overrides. The result is validated.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	registerDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// registerDefaults declares every key so AutomaticEnv can see it.
func registerDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("ipc_socket", d.IPCSocket)
	v.SetDefault("worker_binary", d.WorkerBinary)
	v.SetDefault("client_driver", d.ClientDriver)
	v.SetDefault("tier_file", d.TierFile)
	v.SetDefault("pid_registry_file", d.PIDRegistryFile)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("health_interval", d.HealthInterval)
	v.SetDefault("optimizer_interval", d.OptimizerInterval)
	v.SetDefault("reconnect_settle", d.ReconnectSettle)
	v.SetDefault("send_timeout", d.SendTimeout)
	v.SetDefault("qr_ttl", d.QRTTL)

	for name, p := range d.Pools {
		prefix := "pools." + name + "."
		v.SetDefault(prefix+"users_per_slot", p.UsersPerSlot)
		v.SetDefault(prefix+"max_slots", p.MaxSlots)
		v.SetDefault(prefix+"idle_timeout", p.IdleTimeout)
		v.SetDefault(prefix+"init_timeout", p.InitTimeout)
		v.SetDefault(prefix+"scale_up_threshold", p.ScaleUpThreshold)
		v.SetDefault(prefix+"unit_cost", p.UnitCost)
	}

	v.SetDefault("dedicated.max_workers", d.Dedicated.MaxWorkers)
	v.SetDefault("dedicated.spawn_timeout", d.Dedicated.SpawnTimeout)
	v.SetDefault("dedicated.shutdown_grace", d.Dedicated.ShutdownGrace)
	v.SetDefault("dedicated.restart_backoff", d.Dedicated.RestartBackoff)
	v.SetDefault("dedicated.restart_delay", d.Dedicated.RestartDelay)
	v.SetDefault("dedicated.max_restart_delay", d.Dedicated.MaxRestartDelay)
	v.SetDefault("dedicated.restart_multiplier", d.Dedicated.RestartMultiplier)
	v.SetDefault("dedicated.unit_cost", d.Dedicated.UnitCost)

	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.http_addr", d.MCP.HTTPAddr)
}
