// Package worker is the runtime of a dedicated worker process: it attaches to
// the coordinator over IPC, runs one session client for its user and relays
// commands and events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/ipc"
)

const (
	sessionDirMode = 0o700
	destroyTimeout = 10 * time.Second
)

// ErrStreamLost is returned by Run when the coordinator stream ends without a
// disconnect command. The process should exit non-zero so it is respawned.
var ErrStreamLost = errors.New("coordinator stream lost")

// Config holds configuration for a worker runner
type Config struct {
	UserID  string
	Token   string
	DataDir string
	Driver  string // used when init does not name one
	PID     int    // reported in hello; defaults to os.Getpid()

	Conn    grpc.ClientConnInterface
	Clients chatclient.Factory
	Logger  *slog.Logger
}

// Runner serves one attach stream for the lifetime of the process.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	sendMu sync.Mutex
	stream ipc.AttachClient

	clientMu sync.Mutex
	client   chatclient.Client

	inflight sync.WaitGroup
}

// NewRunner creates a runner
func NewRunner(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.With("user_id", cfg.UserID),
	}
}

// Run attaches to the coordinator and serves commands until a disconnect
// command (nil) or until the stream fails (ErrStreamLost).
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		r.inflight.Wait()
		r.destroyClient()
	}()

	stream, err := ipc.OpenAttach(runCtx, r.cfg.Conn)
	if err != nil {
		return fmt.Errorf("%w: open attach stream: %w", ErrStreamLost, err)
	}
	r.sendMu.Lock()
	r.stream = stream
	r.sendMu.Unlock()

	if err := r.send(ipc.Hello(r.cfg.UserID, r.cfg.Token, r.cfg.PID)); err != nil {
		return fmt.Errorf("%w: send hello: %w", ErrStreamLost, err)
	}
	r.logger.Info("Attached to coordinator", "pid", r.cfg.PID)

	for {
		env, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStreamLost, err)
		}

		switch env.Kind {
		case ipc.KindInit:
			if err := r.initClient(runCtx, env); err != nil {
				r.logger.Error("Failed to start session client", "error", err)
				return err
			}
		case ipc.KindSendMessage:
			r.inflight.Add(1)
			go func(env *ipc.Envelope) {
				defer r.inflight.Done()
				r.handleSend(runCtx, env)
			}(env)
		case ipc.KindLogout:
			r.handleLogout(runCtx)
		case ipc.KindDisconnect:
			r.logger.Info("Disconnect requested by coordinator")
			_ = stream.CloseSend()
			return nil
		default:
			r.logger.Debug("Ignoring envelope", "kind", env.Kind)
		}
	}
}

func (r *Runner) initClient(ctx context.Context, env *ipc.Envelope) error {
	r.clientMu.Lock()
	if r.client != nil {
		r.clientMu.Unlock()
		r.logger.Debug("Session client already running, ignoring init")
		return nil
	}
	r.clientMu.Unlock()

	driver := env.Driver
	if driver == "" {
		driver = r.cfg.Driver
	}
	dataDir := env.DataDir
	if dataDir == "" {
		dataDir = r.cfg.DataDir
	}
	storagePath := filepath.Join(dataDir, "session")
	if err := os.MkdirAll(storagePath, sessionDirMode); err != nil {
		return fmt.Errorf("create session storage: %w", err)
	}

	client, err := r.cfg.Clients.Create(driver, chatclient.Options{
		ID:          r.cfg.UserID,
		StoragePath: storagePath,
		OnEvent:     r.forward,
	})
	if err != nil {
		return fmt.Errorf("create %s client: %w", driver, err)
	}

	r.clientMu.Lock()
	r.client = client
	r.clientMu.Unlock()

	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s client: %w", driver, err)
	}
	r.logger.Info("Session client started", "driver", driver, "storage", storagePath)
	return nil
}

// forward relays a client event to the coordinator.
func (r *Runner) forward(ev chatclient.Event) {
	var env *ipc.Envelope
	switch ev.Kind {
	case chatclient.EventAuthChallenge:
		env = &ipc.Envelope{Kind: ipc.KindQR, Challenge: ev.Challenge}
	case chatclient.EventReady:
		env = &ipc.Envelope{Kind: ipc.KindReady}
	case chatclient.EventAuthFailed:
		env = &ipc.Envelope{Kind: ipc.KindAuthFailed, Reason: ev.Reason}
	case chatclient.EventDisconnected:
		env = &ipc.Envelope{Kind: ipc.KindDisconnected, Reason: ev.Reason}
	case chatclient.EventIncomingMessage:
		if ev.Message == nil {
			return
		}
		env = &ipc.Envelope{Kind: ipc.KindMessage, Message: &ipc.Message{
			ID:        ev.Message.ID,
			From:      ev.Message.From,
			Body:      ev.Message.Body,
			Timestamp: ev.Message.Timestamp,
		}}
	default:
		return
	}
	if err := r.send(env); err != nil {
		r.logger.Warn("Failed to forward event", "kind", ev.Kind, "error", err)
	}
}

func (r *Runner) handleSend(ctx context.Context, env *ipc.Envelope) {
	client := r.currentClient()
	if client == nil {
		r.respond(ipc.Response(env.RequestID, nil, "session client not initialized"))
		return
	}

	receipt, err := client.SendMessage(ctx, env.To, env.Body)
	if err != nil {
		r.respond(ipc.Response(env.RequestID, nil, err.Error()))
		return
	}
	r.respond(ipc.Response(env.RequestID, &ipc.Receipt{
		MessageID: receipt.MessageID,
		Timestamp: receipt.Timestamp,
	}, ""))
}

func (r *Runner) respond(env *ipc.Envelope) {
	if err := r.send(env); err != nil {
		r.logger.Warn("Failed to send response", "request_id", env.RequestID, "error", err)
	}
}

func (r *Runner) handleLogout(ctx context.Context) {
	client := r.currentClient()
	if client == nil {
		return
	}
	if err := client.Logout(ctx); err != nil {
		r.logger.Warn("Logout failed", "error", err)
		return
	}
	r.logger.Info("Logged out")
}

func (r *Runner) currentClient() chatclient.Client {
	r.clientMu.Lock()
	defer r.clientMu.Unlock()
	return r.client
}

func (r *Runner) destroyClient() {
	r.clientMu.Lock()
	client := r.client
	r.client = nil
	r.clientMu.Unlock()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := client.Destroy(ctx); err != nil {
		r.logger.Warn("Failed to destroy session client", "error", err)
	}
}

// send serializes writes on the stream; grpc forbids concurrent SendMsg.
func (r *Runner) send(env *ipc.Envelope) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.stream == nil {
		return errors.New("not attached")
	}
	return r.stream.Send(env)
}
