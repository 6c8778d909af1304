package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
)

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the coordinator config and tier assignments, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), opts.configPath)
			if err != nil {
				return err
			}
			resolver, err := loadResolver(cfg.TierFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: data_dir=%s ipc_socket=%s transport=%s\n",
				cfg.DataDir, cfg.IPCSocket, cfg.MCP.Transport)

			pools := make([]string, 0, len(cfg.Pools))
			for name := range cfg.Pools {
				pools = append(pools, name)
			}
			sort.Strings(pools)
			for _, name := range pools {
				p := cfg.Pools[name]
				fmt.Fprintf(out, "pool %s: users_per_slot=%d max_slots=%d idle_timeout=%s\n",
					name, p.UsersPerSlot, p.MaxSlots, p.IdleTimeout)
			}
			fmt.Fprintf(out, "dedicated: max_workers=%d restart_backoff=%s\n",
				cfg.Dedicated.MaxWorkers, cfg.Dedicated.RestartBackoff)
			fmt.Fprintf(out, "tiers: %v\n", resolver.TierNames())
			return nil
		},
	}
}
