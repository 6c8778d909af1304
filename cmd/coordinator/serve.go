package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/chatclient/loopback"
	"github.com/AltairaLabs/chatpool/internal/coordinator"
	"github.com/AltairaLabs/chatpool/internal/coordinator/cache"
	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/coordinator/retry"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage/file"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage/memory"
	"github.com/AltairaLabs/chatpool/internal/ipc"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

const (
	// Attach streams are long-lived, so GracefulStop may never return on its own.
	grpcStopTimeout = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), opts.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, opts.debug)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// stack is the assembled coordinator.
type stack struct {
	challenges *cache.ChallengeCache
	pools      []*coordinator.SlotPoolManager
	workers    *coordinator.DedicatedWorkerManager
	registry   *coordinator.SessionRegistry
	metrics    *coordinator.MetricsAggregator
	health     *coordinator.HealthMonitor
	optimizer  *coordinator.PoolOptimizer
	channel    *coordinator.ChannelServer
	mcp        *coordinator.MCPServer
}

// buildStack wires every component from cfg. Nothing is started.
func buildStack(cfg config.Config, logger *slog.Logger) (*stack, error) {
	resolver, err := loadResolver(cfg.TierFile)
	if err != nil {
		return nil, err
	}
	pids, err := newPIDRegistry(cfg.PIDRegistryFile)
	if err != nil {
		return nil, err
	}

	clients := chatclient.NewRegistry()
	loopback.Register(clients, 0)
	if !clients.IsSupported(cfg.ClientDriver) {
		return nil, fmt.Errorf("client driver %q is not available (have %v)", cfg.ClientDriver, clients.Drivers())
	}

	s := &stack{challenges: cache.NewChallengeCache(cfg.QRTTL)}
	deps := coordinator.HostDeps{
		QR:     s.challenges,
		PIDs:   pids,
		Logger: logger,
	}

	hosts := make([]coordinator.Host, 0, len(tier.PooledTypes())+1)
	for _, hosting := range tier.PooledTypes() {
		poolCfg, ok := cfg.Pools[string(hosting)]
		if !ok {
			continue
		}
		pool := coordinator.NewSlotPoolManager(coordinator.SlotPoolConfig{
			HostingType: hosting,
			Pool:        poolCfg,
			Driver:      cfg.ClientDriver,
			DataDir:     cfg.DataDir,
			SendTimeout: cfg.SendTimeout,
		}, clients, deps)
		s.pools = append(s.pools, pool)
		hosts = append(hosts, pool)
	}

	s.workers = coordinator.NewDedicatedWorkerManager(coordinator.WorkerManagerConfig{
		DataDir:       cfg.DataDir,
		Socket:        cfg.IPCSocket,
		Driver:        cfg.ClientDriver,
		MaxWorkers:    cfg.Dedicated.MaxWorkers,
		SpawnTimeout:  cfg.Dedicated.SpawnTimeout,
		ShutdownGrace: cfg.Dedicated.ShutdownGrace,
		SendTimeout:   cfg.SendTimeout,
		Restart:       retry.FromConfig(cfg.Dedicated),
		UnitCost:      cfg.Dedicated.UnitCost,
	}, &coordinator.ExecSpawner{Binary: cfg.WorkerBinary}, deps)
	hosts = append(hosts, s.workers)

	audit := coordinator.NewAuditLogger(logger)
	s.registry = coordinator.NewSessionRegistry(resolver, hosts, cfg.ReconnectSettle, logger, audit)
	s.metrics = coordinator.NewMetricsAggregator(s.registry, s.pools, s.workers)
	s.health = coordinator.NewHealthMonitor(s.pools, s.workers, cfg.HealthInterval, logger)
	s.optimizer = coordinator.NewPoolOptimizer(s.pools, cfg.OptimizerInterval, logger)
	s.channel = coordinator.NewChannelServer(s.workers, logger)
	s.mcp = coordinator.NewMCPServer(coordinator.ServerConfig{
		Name:    serverName,
		Version: version,
	}, s.registry, s.metrics, s.challenges, audit)
	return s, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("Starting chatpool coordinator",
		"version", version,
		"data_dir", cfg.DataDir,
		"ipc_socket", cfg.IPCSocket,
		"transport", cfg.MCP.Transport,
		"client_driver", cfg.ClientDriver,
	)

	s, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer s.challenges.Close()

	lis, err := ipc.Listen(ctx, cfg.IPCSocket)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	s.channel.Register(grpcServer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		logger.Info("Serving worker IPC", "socket", cfg.IPCSocket)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("IPC server error", "error", err)
			cancel()
		}
	}()
	go s.health.Run(ctx)
	go s.optimizer.Run(ctx)

	go func() {
		var err error
		if cfg.MCP.Transport == config.TransportHTTP {
			err = s.mcp.ServeHTTPWithLogger(cfg.MCP.HTTPAddr, logger)
		} else {
			err = s.mcp.ServeContext(ctx, logger)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error("MCP server error", "error", err)
		}
		// A closed stdin ends the stdio transport, and with it the coordinator.
		cancel()
	}()

	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	// Sessions go first so dedicated workers still have the IPC server to
	// receive their disconnect on.
	if err := s.registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Session shutdown incomplete", "error", err)
	}
	if err := s.mcp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP shutdown failed", "error", err)
	}
	stopGRPC(grpcServer, logger)

	logger.Info("Coordinator shutdown complete")
	return nil
}

func stopGRPC(srv *grpc.Server, logger *slog.Logger) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("IPC server stopped gracefully")
	case <-time.After(grpcStopTimeout):
		logger.Warn("Graceful stop timed out, forcing stop")
		srv.Stop()
		<-stopped
	}
}

func loadResolver(path string) (*tier.StaticResolver, error) {
	if path == "" {
		return tier.NewStaticResolver(tier.DefaultAssignments())
	}
	return tier.LoadStaticResolver(path)
}

func newPIDRegistry(path string) (storage.PIDRegistry, error) {
	if path == "" {
		return memory.NewPIDRegistry(), nil
	}
	return file.NewPIDRegistry(path)
}
