// Command chatpool-worker hosts one dedicated user's session client. It is
// spawned by the coordinator and attaches back to it over the IPC socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/chatclient/loopback"
	"github.com/AltairaLabs/chatpool/internal/coordinator"
	"github.com/AltairaLabs/chatpool/internal/ipc"
	"github.com/AltairaLabs/chatpool/internal/worker"
)

var version = "0.1.0"

type options struct {
	userID  string
	dataDir string
	socket  string
	driver  string
	token   string
	debug   bool
	version bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, os.Getenv, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "chatpool-worker:", err)
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, "chatpool-worker", version)
		return 0
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})).
		With("component", "worker")
	slog.SetDefault(logger)

	conn, err := ipc.Dial(opts.socket)
	if err != nil {
		logger.Error("Failed to dial coordinator", "socket", opts.socket, "error", err)
		return 1
	}
	defer func() { _ = conn.Close() }()

	clients := chatclient.NewRegistry()
	loopback.Register(clients, 0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := worker.NewRunner(worker.Config{
		UserID:  opts.userID,
		Token:   opts.token,
		DataDir: opts.dataDir,
		Driver:  opts.driver,
		Conn:    conn,
		Clients: clients,
		Logger:  logger,
	})
	if err := runner.Run(ctx); err != nil {
		logger.Error("Worker stopped", "error", err)
		return 1
	}
	logger.Info("Worker stopped")
	return 0
}

// parseFlags reads the worker's flags. The attach token comes from the
// environment unless --attach-token is given.
func parseFlags(args []string, getenv func(string) string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("chatpool-worker", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.userID, "user-id", "", "user served by this worker")
	fs.StringVar(&opts.dataDir, "data-dir", "", "directory holding the user's session storage")
	fs.StringVar(&opts.socket, "socket", "", "coordinator IPC socket")
	fs.StringVar(&opts.driver, "driver", "loopback", "session client driver")
	fs.StringVar(&opts.token, "attach-token", "", "attach token (default $"+coordinator.AttachTokenEnv+")")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.version {
		return opts, nil
	}
	if opts.token == "" {
		opts.token = getenv(coordinator.AttachTokenEnv)
	}

	switch {
	case opts.userID == "":
		return options{}, errors.New("--user-id is required")
	case opts.dataDir == "":
		return options{}, errors.New("--data-dir is required")
	case opts.socket == "":
		return options{}, errors.New("--socket is required")
	case opts.token == "":
		return options{}, fmt.Errorf("attach token missing: set --attach-token or %s", coordinator.AttachTokenEnv)
	}
	return opts, nil
}
