package coordinator

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AltairaLabs/chatpool/internal/ipc"
)

// ChannelServer accepts attach streams from dedicated workers and routes
// their envelopes to the worker manager.
type ChannelServer struct {
	workers *DedicatedWorkerManager
	logger  *slog.Logger
}

var _ ipc.WorkerChannelServer = (*ChannelServer)(nil)

// NewChannelServer creates a channel server for workers.
func NewChannelServer(workers *DedicatedWorkerManager, logger *slog.Logger) *ChannelServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelServer{workers: workers, logger: logger}
}

// Register adds the worker channel service to s.
func (s *ChannelServer) Register(r grpc.ServiceRegistrar) {
	ipc.RegisterWorkerChannelServer(r, s)
}

// Attach serves one worker. The first envelope must be a hello carrying the
// attach token issued at spawn time.
func (s *ChannelServer) Attach(stream ipc.AttachServer) error {
	hello, err := stream.Recv()
	if err != nil {
		return err
	}
	if hello.Kind != ipc.KindHello {
		return status.Errorf(codes.InvalidArgument, "expected %s, got %s", ipc.KindHello, hello.Kind)
	}

	ch := &streamChannel{stream: stream}
	if err := s.workers.Attach(hello.UserID, hello.Token, ch); err != nil {
		s.logger.Warn("rejected worker attach", "user_id", hello.UserID, "pid", hello.PID, "error", err)
		return status.Error(codes.PermissionDenied, err.Error())
	}
	defer s.workers.Detach(hello.UserID, ch)

	for {
		env, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			s.logger.Debug("worker stream ended", "user_id", hello.UserID, "error", err)
			return err
		}
		s.workers.HandleEvent(hello.UserID, ch, env)
	}
}

// streamChannel serializes sends on a server stream; grpc does not allow
// concurrent SendMsg calls.
type streamChannel struct {
	mu     sync.Mutex
	stream ipc.AttachServer
}

func (c *streamChannel) Send(env *ipc.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Send(env)
}
