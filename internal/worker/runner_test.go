package worker

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/AltairaLabs/chatpool/internal/chatclient/mock"
	"github.com/AltairaLabs/chatpool/internal/ipc"
)

const testTimeout = 5 * time.Second

// fakeCoordinator hands every attached stream to the test and keeps the
// stream open until the test says so.
type fakeCoordinator struct {
	streams chan ipc.AttachServer
	hellos  chan *ipc.Envelope
	done    chan struct{}
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		streams: make(chan ipc.AttachServer, 1),
		hellos:  make(chan *ipc.Envelope, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeCoordinator) Attach(stream ipc.AttachServer) error {
	hello, err := stream.Recv()
	if err != nil {
		return err
	}
	f.hellos <- hello
	f.streams <- stream
	select {
	case <-f.done:
		return nil
	case <-stream.Context().Done():
		return stream.Context().Err()
	}
}

func startCoordinator(t *testing.T, srv ipc.WorkerChannelServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	ipc.RegisterWorkerChannelServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type harness struct {
	coord   *fakeCoordinator
	factory *mock.Factory
	stream  ipc.AttachServer
	hello   *ipc.Envelope
	dataDir string
	result  chan error
	cancel  context.CancelFunc
}

func startRunner(t *testing.T, configure func(*mock.Client)) *harness {
	t.Helper()

	coord := newFakeCoordinator()
	conn := startCoordinator(t, coord)

	factory := mock.NewFactory()
	if configure != nil {
		factory.OnCreate(configure)
	}

	h := &harness{
		coord:   coord,
		factory: factory,
		dataDir: t.TempDir(),
		result:  make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	runner := NewRunner(Config{
		UserID:  "alice",
		Token:   "tok-1",
		DataDir: h.dataDir,
		Driver:  "mock",
		PID:     4242,
		Conn:    conn,
		Clients: factory,
	})
	go func() { h.result <- runner.Run(ctx) }()

	select {
	case h.hello = <-coord.hellos:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for hello")
	}
	h.stream = <-coord.streams
	return h
}

func (h *harness) recv(t *testing.T) *ipc.Envelope {
	t.Helper()
	ch := make(chan *ipc.Envelope, 1)
	errCh := make(chan error, 1)
	go func() {
		env, err := h.stream.Recv()
		if err != nil {
			errCh <- err
			return
		}
		ch <- env
	}()
	select {
	case env := <-ch:
		return env
	case err := <-errCh:
		t.Fatalf("recv failed: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for envelope")
	}
	return nil
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(testTimeout):
		t.Fatal("runner did not return")
	}
	return nil
}

func TestRunnerSendsHello(t *testing.T) {
	h := startRunner(t, nil)

	assert.Equal(t, ipc.KindHello, h.hello.Kind)
	assert.Equal(t, "alice", h.hello.UserID)
	assert.Equal(t, "tok-1", h.hello.Token)
	assert.Equal(t, 4242, h.hello.PID)
}

func TestRunnerInitForwardsChallenge(t *testing.T) {
	h := startRunner(t, nil)

	require.NoError(t, h.stream.Send(ipc.Init("", "")))
	require.Eventually(t, func() bool { return h.factory.Count() == 1 }, testTimeout, 10*time.Millisecond)

	client := h.factory.Last()
	assert.Equal(t, "alice", client.Options().ID)
	assert.Equal(t, filepath.Join(h.dataDir, "session"), client.Options().StoragePath)
	assert.DirExists(t, client.Options().StoragePath)

	client.EmitChallenge("qr-payload")
	env := h.recv(t)
	assert.Equal(t, ipc.KindQR, env.Kind)
	assert.Equal(t, "qr-payload", env.Challenge)

	client.EmitMessage("bob", "alice", "hi")
	env = h.recv(t)
	assert.Equal(t, ipc.KindMessage, env.Kind)
	require.NotNil(t, env.Message)
	assert.Equal(t, "bob", env.Message.From)
	assert.Equal(t, "hi", env.Message.Body)
}

func TestRunnerInitUsesEnvelopeDataDir(t *testing.T) {
	h := startRunner(t, nil)
	dir := t.TempDir()

	require.NoError(t, h.stream.Send(ipc.Init("mock", dir)))
	require.Eventually(t, func() bool { return h.factory.Count() == 1 }, testTimeout, 10*time.Millisecond)

	assert.Equal(t, filepath.Join(dir, "session"), h.factory.Last().Options().StoragePath)
}

func TestRunnerReadyAndSend(t *testing.T) {
	h := startRunner(t, func(c *mock.Client) { c.SetAutoReady(true) })

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	env := h.recv(t)
	require.Equal(t, ipc.KindReady, env.Kind)

	require.NoError(t, h.stream.Send(ipc.SendMessage("req-1", "bob", "hello")))
	env = h.recv(t)
	assert.Equal(t, ipc.KindResponse, env.Kind)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Empty(t, env.Error)
	require.NotNil(t, env.Receipt)
	assert.NotEmpty(t, env.Receipt.MessageID)

	sent := h.factory.Last().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].To)
	assert.Equal(t, "hello", sent[0].Body)
}

func TestRunnerSendErrorIsReported(t *testing.T) {
	h := startRunner(t, func(c *mock.Client) {
		c.SetAutoReady(true)
		c.SetSendError(errors.New("recipient unknown"))
	})

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	require.Equal(t, ipc.KindReady, h.recv(t).Kind)

	require.NoError(t, h.stream.Send(ipc.SendMessage("req-2", "nobody", "x")))
	env := h.recv(t)
	assert.Equal(t, "req-2", env.RequestID)
	assert.Equal(t, "recipient unknown", env.Error)
	assert.Nil(t, env.Receipt)
}

func TestRunnerSendBeforeInit(t *testing.T) {
	h := startRunner(t, nil)

	require.NoError(t, h.stream.Send(ipc.SendMessage("req-3", "bob", "x")))
	env := h.recv(t)
	assert.Equal(t, "req-3", env.RequestID)
	assert.Equal(t, "session client not initialized", env.Error)
}

func TestRunnerLogout(t *testing.T) {
	h := startRunner(t, nil)

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	require.Eventually(t, func() bool { return h.factory.Count() == 1 }, testTimeout, 10*time.Millisecond)

	require.NoError(t, h.stream.Send(&ipc.Envelope{Kind: ipc.KindLogout}))
	client := h.factory.Last()
	require.Eventually(t, func() bool { return client.LogoutCalls() == 1 }, testTimeout, 10*time.Millisecond)
}

func TestRunnerDisconnectReturnsNil(t *testing.T) {
	h := startRunner(t, nil)

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	require.Eventually(t, func() bool { return h.factory.Count() == 1 }, testTimeout, 10*time.Millisecond)

	require.NoError(t, h.stream.Send(&ipc.Envelope{Kind: ipc.KindDisconnect}))
	assert.NoError(t, h.wait(t))
	assert.Equal(t, 1, h.factory.Last().DestroyCalls())
}

func TestRunnerStreamLoss(t *testing.T) {
	h := startRunner(t, nil)

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	require.Eventually(t, func() bool { return h.factory.Count() == 1 }, testTimeout, 10*time.Millisecond)

	close(h.coord.done)
	err := h.wait(t)
	assert.ErrorIs(t, err, ErrStreamLost)
	assert.Equal(t, 1, h.factory.Last().DestroyCalls())
}

func TestRunnerInitFailure(t *testing.T) {
	h := startRunner(t, func(c *mock.Client) { c.SetInitError(errors.New("bad credentials")) })

	require.NoError(t, h.stream.Send(ipc.Init("mock", "")))
	err := h.wait(t)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStreamLost)
	assert.Contains(t, err.Error(), "bad credentials")
}
