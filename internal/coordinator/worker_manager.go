package coordinator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/coordinator/retry"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
	"github.com/AltairaLabs/chatpool/internal/ipc"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

const workerDirMode = 0o700

// WorkerStatus is the lifecycle state of a dedicated worker.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerError    WorkerStatus = "error"
)

// Channel sends envelopes to an attached worker. Implementations must be safe
// for concurrent use.
type Channel interface {
	Send(env *ipc.Envelope) error
}

// workerProcess is one incarnation of a user's worker. A respawn replaces it.
type workerProcess struct {
	token      string
	proc       Process
	pid        int
	abandoned  bool // killed by the manager; the exit is not a crash
	attached   chan struct{}
	attachOnce sync.Once
	exited     chan struct{}
	exitCode   int
}

// DedicatedWorker is the per-user record that survives respawns.
// All fields are guarded by the manager's mutex.
type DedicatedWorker struct {
	UserID  string
	dataDir string
	session *Session

	current       *workerProcess
	channel       Channel
	status        WorkerStatus
	startTime     time.Time
	lastActivity  time.Time
	restartCount  int
	authFailed    bool
	stopping      bool
	exitedCleanly bool
	respawnTimer  *time.Timer
	// restartPending is set from the moment a respawn is scheduled until an
	// incarnation attaches or the respawn is abandoned. It spans the spawn
	// itself, when respawnTimer is already nil.
	restartPending bool
}

// WorkerInfo is a point-in-time copy of a dedicated worker.
type WorkerInfo struct {
	UserID        string       `json:"user_id"`
	PID           int          `json:"pid,omitempty"`
	Status        WorkerStatus `json:"status"`
	Attached      bool         `json:"attached"`
	Authenticated bool         `json:"authenticated"`
	RestartCount  int          `json:"restart_count"`
	StartTime     time.Time    `json:"start_time"`
	LastActivity  time.Time    `json:"last_activity"`
}

// WorkerManagerConfig configures a DedicatedWorkerManager.
type WorkerManagerConfig struct {
	DataDir       string // worker data lives under <DataDir>/workers/<user key>
	Socket        string
	Driver        string
	MaxWorkers    int
	SpawnTimeout  time.Duration
	ShutdownGrace time.Duration
	SendTimeout   time.Duration
	Restart       retry.Policy
	UnitCost      float64 // estimated cost per running worker
}

// DedicatedWorkerManager runs one isolated worker process per user and talks
// to it over the IPC channel.
type DedicatedWorkerManager struct {
	cfg     WorkerManagerConfig
	spawner Spawner
	qr      storage.QRStore
	pids    storage.PIDRegistry
	events  EventSink
	logger  *slog.Logger
	now     func() time.Time
	pending *pendingTable[*ipc.Receipt]

	mu      sync.Mutex
	workers map[string]*DedicatedWorker
	closed  bool
}

var _ Host = (*DedicatedWorkerManager)(nil)

// NewDedicatedWorkerManager creates a manager with no workers.
func NewDedicatedWorkerManager(cfg WorkerManagerConfig, spawner Spawner, deps HostDeps) *DedicatedWorkerManager {
	deps = deps.withDefaults()
	if cfg.SpawnTimeout <= 0 {
		cfg.SpawnTimeout = config.DefaultSpawnTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = config.DefaultShutdownGrace
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = config.DefaultSendTimeout
	}
	if cfg.Restart.InitialDelay <= 0 {
		cfg.Restart = retry.DefaultPolicy()
	}
	return &DedicatedWorkerManager{
		cfg:     cfg,
		spawner: spawner,
		qr:      deps.QR,
		pids:    deps.PIDs,
		events:  deps.Events,
		logger:  deps.Logger.With("host", string(tier.Dedicated)),
		now:     deps.Now,
		pending: newPendingTable[*ipc.Receipt](),
		workers: make(map[string]*DedicatedWorker),
	}
}

// HostingType returns tier.Dedicated.
func (m *DedicatedWorkerManager) HostingType() tier.HostingType {
	return tier.Dedicated
}

// WorkerDataDir returns the data directory used for userID's worker.
func (m *DedicatedWorkerManager) WorkerDataDir(userID string) string {
	sum := blake3.Sum256([]byte(userID))
	return filepath.Join(m.cfg.DataDir, "workers", hex.EncodeToString(sum[:8]))
}

// Connect spawns a worker for userID and waits for it to attach. A user that
// already has a worker gets a fresh session bound to it without a respawn.
func (m *DedicatedWorkerManager) Connect(ctx context.Context, userID string, policy tier.Policy) (*Session, error) {
	hostRef := storage.WorkerKey(userID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errPoolClosed
	}
	if w := m.workers[userID]; w != nil {
		sess := newSession(userID, policy, tier.Dedicated, hostRef, m.now())
		if w.session != nil {
			sess.authenticated = w.session.Authenticated()
		}
		w.session = sess
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "reusing dedicated worker", "user_id", userID)
		return sess, nil
	}
	if m.cfg.MaxWorkers > 0 && len(m.workers) >= m.cfg.MaxWorkers {
		n := len(m.workers)
		m.mu.Unlock()
		return nil, fmt.Errorf("dedicated workers at %d/%d: %w", n, m.cfg.MaxWorkers, ErrCapacityExceeded)
	}
	sess := newSession(userID, policy, tier.Dedicated, hostRef, m.now())
	w := &DedicatedWorker{
		UserID:  userID,
		dataDir: m.WorkerDataDir(userID),
		session: sess,
		status:  WorkerStarting,
	}
	m.workers[userID] = w
	m.mu.Unlock()

	if err := m.start(ctx, w); err != nil {
		m.mu.Lock()
		if m.workers[userID] == w {
			delete(m.workers, userID)
		}
		m.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// start spawns a new incarnation for w and blocks until it attaches. The
// attach token is registered before the process exists so an early hello
// is never rejected.
func (m *DedicatedWorkerManager) start(ctx context.Context, w *DedicatedWorker) error {
	if err := os.MkdirAll(w.dataDir, workerDirMode); err != nil {
		return fmt.Errorf("create worker data dir: %w: %w", ErrSpawnFailure, err)
	}

	inc := &workerProcess{
		token:    uuid.NewString(),
		attached: make(chan struct{}),
		exited:   make(chan struct{}),
	}
	m.mu.Lock()
	w.current = inc
	w.channel = nil
	w.status = WorkerStarting
	m.mu.Unlock()

	proc, err := m.spawner.Spawn(ctx, SpawnSpec{
		UserID:  w.UserID,
		DataDir: w.dataDir,
		Socket:  m.cfg.Socket,
		Driver:  m.cfg.Driver,
		Token:   inc.token,
	})
	if err != nil {
		m.mu.Lock()
		if w.current == inc {
			w.status = WorkerError
		}
		inc.abandoned = true
		m.mu.Unlock()
		return fmt.Errorf("spawn worker for %s: %w: %w", w.UserID, ErrSpawnFailure, err)
	}

	m.mu.Lock()
	inc.proc = proc
	inc.pid = proc.PID()
	w.startTime = m.now()
	stopping := w.stopping || m.closed
	if stopping {
		inc.abandoned = true
	}
	m.mu.Unlock()

	m.registerPID(ctx, w.UserID, inc.pid)
	go m.watch(w, inc)

	if stopping {
		_ = proc.Kill()
		return fmt.Errorf("worker for %s stopped while starting: %w", w.UserID, ErrSpawnFailure)
	}

	m.logger.InfoContext(ctx, "worker spawned", "user_id", w.UserID, "pid", inc.pid)

	timer := time.NewTimer(m.cfg.SpawnTimeout)
	defer timer.Stop()

	var cause error
	select {
	case <-inc.attached:
		m.mu.Lock()
		if w.current == inc {
			w.restartPending = false
		}
		m.mu.Unlock()
		return nil
	case <-inc.exited:
		cause = fmt.Errorf("worker for %s exited with code %d before attaching", w.UserID, inc.exitCode)
	case <-timer.C:
		cause = fmt.Errorf("worker for %s did not attach within %s", w.UserID, m.cfg.SpawnTimeout)
	case <-ctx.Done():
		cause = ctx.Err()
	}

	m.mu.Lock()
	inc.abandoned = true
	if w.current == inc {
		w.status = WorkerError
	}
	m.mu.Unlock()
	if err := proc.Kill(); err != nil {
		m.logger.WarnContext(ctx, "failed to kill unattached worker", "user_id", w.UserID, "pid", inc.pid, "error", err)
	}
	return fmt.Errorf("%w: %w", ErrSpawnFailure, cause)
}

// watch reaps inc and decides whether its exit was a crash.
func (m *DedicatedWorkerManager) watch(w *DedicatedWorker, inc *workerProcess) {
	code, err := inc.proc.Wait()
	ctx := context.Background()

	m.mu.Lock()
	inc.exitCode = code
	close(inc.exited)

	if w.current != inc {
		m.mu.Unlock()
		return
	}
	w.channel = nil
	tracked := m.workers[w.UserID] == w
	if inc.abandoned || w.stopping || !tracked || m.closed {
		m.mu.Unlock()
		m.unregisterPID(ctx, w.UserID)
		return
	}

	sess := w.session
	w.status = WorkerError
	if code == 0 && err == nil {
		w.exitedCleanly = true
		m.mu.Unlock()
		m.afterExit(ctx, w.UserID, sess, "worker exited")
		m.logger.InfoContext(ctx, "worker exited without a stop request, not respawning",
			"user_id", w.UserID, "pid", inc.pid)
		return
	}

	delay := m.cfg.Restart.CalculateDelay(w.restartCount)
	w.restartCount++
	attempt := w.restartCount
	m.mu.Unlock()

	// Release the old pid before the replacement can register its own.
	m.afterExit(ctx, w.UserID, sess, fmt.Sprintf("worker crashed with code %d", code))
	m.logger.WarnContext(ctx, "worker crashed",
		"user_id", w.UserID,
		"pid", inc.pid,
		"exit_code", code,
		"wait_error", err,
		"restart_count", attempt,
		"restart_in", delay.String())

	m.mu.Lock()
	if !m.closed && !w.stopping && m.workers[w.UserID] == w && w.current == inc && !w.restartPending {
		m.scheduleRespawnLocked(w, delay)
	}
	m.mu.Unlock()
}

func (m *DedicatedWorkerManager) afterExit(ctx context.Context, userID string, sess *Session, reason string) {
	m.unregisterPID(ctx, userID)
	m.pending.failOwner(userID, fmt.Errorf("worker for %s: %w", userID, ErrWorkerExited))
	if sess == nil {
		return
	}
	sess.setAuthenticated(false)
	ev := sessionEvent(SessionDisconnected, sess, m.now())
	ev.Reason = reason
	m.events.Publish(ctx, ev)
}

func (m *DedicatedWorkerManager) scheduleRespawnLocked(w *DedicatedWorker, delay time.Duration) {
	w.restartPending = true
	w.respawnTimer = time.AfterFunc(delay, func() { m.respawn(w) })
}

func (m *DedicatedWorkerManager) respawn(w *DedicatedWorker) {
	ctx := context.Background()

	m.mu.Lock()
	w.respawnTimer = nil
	if m.closed || w.stopping || m.workers[w.UserID] != w {
		w.restartPending = false
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	err := m.start(ctx, w)
	if err == nil {
		m.logger.InfoContext(ctx, "worker respawned", "user_id", w.UserID)
		return
	}

	m.mu.Lock()
	if m.closed || w.stopping || m.workers[w.UserID] != w {
		w.restartPending = false
		m.mu.Unlock()
		return
	}
	w.status = WorkerError
	delay := m.cfg.Restart.CalculateDelay(w.restartCount)
	w.restartCount++
	m.scheduleRespawnLocked(w, delay)
	m.mu.Unlock()

	m.logger.ErrorContext(ctx, "worker respawn failed", "user_id", w.UserID, "retry_in", delay.String(), "error", err)
}

// EnsureRunning re-arms the respawn of a crashed worker that has no restart
// pending, including one whose spawn is still in progress. It reports whether a respawn was scheduled.
func (m *DedicatedWorkerManager) EnsureRunning(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.workers[userID]
	if w == nil || m.closed || w.stopping || w.exitedCleanly ||
		w.status != WorkerError || w.restartPending {
		return false
	}
	delay := m.cfg.Restart.CalculateDelay(w.restartCount)
	w.restartCount++
	m.scheduleRespawnLocked(w, delay)
	return true
}

// Attach binds an IPC channel to the worker that presented token and sends
// it the init envelope.
func (m *DedicatedWorkerManager) Attach(userID, token string, ch Channel) error {
	m.mu.Lock()
	w := m.workers[userID]
	if w == nil || w.current == nil || w.current.abandoned || w.stopping {
		m.mu.Unlock()
		return fmt.Errorf("no worker expected for %s", userID)
	}
	inc := w.current
	if inc.token != token {
		m.mu.Unlock()
		return fmt.Errorf("invalid attach token for %s", userID)
	}
	w.channel = ch
	w.status = WorkerRunning
	w.lastActivity = m.now()
	dataDir := w.dataDir
	m.mu.Unlock()

	if err := ch.Send(ipc.Init(m.cfg.Driver, dataDir)); err != nil {
		m.mu.Lock()
		if w.channel == ch {
			w.channel = nil
		}
		m.mu.Unlock()
		return fmt.Errorf("init worker for %s: %w", userID, err)
	}
	inc.attachOnce.Do(func() { close(inc.attached) })
	m.logger.Info("worker attached", "user_id", userID, "pid", inc.pid)
	return nil
}

// Detach unbinds ch after its stream ends. Requests in flight on it fail.
func (m *DedicatedWorkerManager) Detach(userID string, ch Channel) {
	m.mu.Lock()
	w := m.workers[userID]
	if w == nil || w.channel != ch {
		m.mu.Unlock()
		return
	}
	w.channel = nil
	m.mu.Unlock()

	if n := m.pending.failOwner(userID, fmt.Errorf("channel to %s closed: %w", userID, ErrWorkerExited)); n > 0 {
		m.logger.Warn("worker detached with requests in flight", "user_id", userID, "failed", n)
	}
}

// HandleEvent applies an envelope received from userID's worker on ch.
// Envelopes from a channel that is no longer current are dropped.
func (m *DedicatedWorkerManager) HandleEvent(userID string, ch Channel, env *ipc.Envelope) {
	ctx := context.Background()
	now := m.now()

	m.mu.Lock()
	w := m.workers[userID]
	if w == nil || w.channel != ch {
		m.mu.Unlock()
		return
	}
	sess := w.session

	switch env.Kind {
	case ipc.KindResponse:
		w.lastActivity = now
		m.mu.Unlock()
		var err error
		if env.Error != "" {
			err = errors.New(env.Error)
		}
		if !m.pending.resolve(env.RequestID, env.Receipt, err) {
			m.logger.DebugContext(ctx, "late worker response", "user_id", userID, "request_id", env.RequestID)
		}

	case ipc.KindQR:
		w.authFailed = false
		m.mu.Unlock()
		sess.setAuthenticated(false)
		if err := m.qr.Save(ctx, userID, env.Challenge); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist auth challenge", "user_id", userID, "error", err)
		}
		ev := sessionEvent(SessionQR, sess, now)
		ev.Challenge = env.Challenge
		m.events.Publish(ctx, ev)

	case ipc.KindReady:
		w.authFailed = false
		w.restartCount = 0
		m.mu.Unlock()
		sess.setAuthenticated(true)
		m.clearQR(ctx, userID)
		m.logger.InfoContext(ctx, "worker ready", "user_id", userID)
		m.events.Publish(ctx, sessionEvent(SessionReady, sess, now))

	case ipc.KindAuthFailed:
		w.authFailed = true
		m.mu.Unlock()
		sess.setAuthenticated(false)
		m.clearQR(ctx, userID)
		m.logger.WarnContext(ctx, "worker authentication failed", "user_id", userID, "reason", env.Reason)
		ev := sessionEvent(SessionAuthFailed, sess, now)
		ev.Reason = env.Reason
		m.events.Publish(ctx, ev)

	case ipc.KindDisconnected:
		m.mu.Unlock()
		sess.setAuthenticated(false)
		ev := sessionEvent(SessionDisconnected, sess, now)
		ev.Reason = env.Reason
		m.events.Publish(ctx, ev)

	case ipc.KindMessage:
		w.lastActivity = now
		m.mu.Unlock()
		if env.Message == nil {
			return
		}
		sess.recordMessage(now)
		ev := sessionEvent(SessionMessage, sess, now)
		ev.Message = &chatclient.IncomingMessage{
			ID:        env.Message.ID,
			From:      env.Message.From,
			Recipient: userID,
			Body:      env.Message.Body,
			Timestamp: env.Message.Timestamp,
		}
		m.events.Publish(ctx, ev)

	default:
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "ignoring worker envelope", "user_id", userID, "kind", env.Kind)
	}
}

// SendMessage forwards a send request to the user's worker and waits for the
// correlated response.
func (m *DedicatedWorkerManager) SendMessage(ctx context.Context, userID, to, body string) (*SendResult, error) {
	m.mu.Lock()
	w := m.workers[userID]
	if w == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("user %s: %w", userID, ErrSessionNotFound)
	}
	sess := w.session
	if w.status != WorkerRunning || w.channel == nil || !sess.Authenticated() {
		err := fmt.Errorf("worker for %s is %s: %w", userID, w.status, ErrHostNotReady)
		if w.authFailed {
			err = fmt.Errorf("worker for %s: %w: %w", userID, ErrHostNotReady, ErrAuthFailure)
		}
		m.mu.Unlock()
		return nil, err
	}
	ch := w.channel
	w.lastActivity = m.now()
	m.mu.Unlock()

	requestID := uuid.NewString()
	resultCh := m.pending.register(userID, requestID)
	defer m.pending.remove(requestID)

	if err := ch.Send(ipc.SendMessage(requestID, to, body)); err != nil {
		return nil, fmt.Errorf("send to worker for %s: %w", userID, err)
	}

	timer := time.NewTimer(m.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("worker for %s: %w", userID, res.err)
		}
		if res.value == nil {
			return nil, fmt.Errorf("worker for %s returned no receipt", userID)
		}
		sess.recordMessage(m.now())
		return &SendResult{
			MessageID:   res.value.MessageID,
			Timestamp:   res.value.Timestamp,
			HostingType: tier.Dedicated,
			HostRef:     sess.HostRef,
		}, nil
	case <-timer.C:
		return nil, fmt.Errorf("worker for %s after %s: %w", userID, m.cfg.SendTimeout, ErrSendTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Logout asks the user's worker to log out of its account. The worker keeps
// running and will present a new challenge.
func (m *DedicatedWorkerManager) Logout(ctx context.Context, userID string) error {
	m.mu.Lock()
	w := m.workers[userID]
	if w == nil {
		m.mu.Unlock()
		return fmt.Errorf("user %s: %w", userID, ErrSessionNotFound)
	}
	ch := w.channel
	m.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("worker for %s not attached: %w", userID, ErrHostNotReady)
	}
	if err := ch.Send(&ipc.Envelope{Kind: ipc.KindLogout}); err != nil {
		return fmt.Errorf("logout worker for %s: %w", userID, err)
	}
	m.logger.InfoContext(ctx, "worker logout requested", "user_id", userID)
	return nil
}

// Disconnect stops the user's worker: a disconnect request first, then a
// kill once the shutdown grace has passed.
func (m *DedicatedWorkerManager) Disconnect(ctx context.Context, userID string) error {
	m.mu.Lock()
	w := m.workers[userID]
	if w == nil {
		m.mu.Unlock()
		return nil
	}
	delete(m.workers, userID)
	w.stopping = true
	if w.respawnTimer != nil {
		w.respawnTimer.Stop()
		w.respawnTimer = nil
	}
	inc, ch := w.current, w.channel
	m.mu.Unlock()

	m.pending.failOwner(userID, fmt.Errorf("worker for %s disconnected: %w", userID, ErrWorkerExited))
	m.stopProcess(ctx, userID, inc, ch)
	m.clearQR(ctx, userID)
	m.logger.InfoContext(ctx, "worker stopped", "user_id", userID)
	return nil
}

func (m *DedicatedWorkerManager) stopProcess(ctx context.Context, userID string, inc *workerProcess, ch Channel) {
	if inc == nil {
		return
	}
	m.mu.Lock()
	proc := inc.proc
	m.mu.Unlock()
	if proc == nil {
		return
	}

	if ch != nil {
		if err := ch.Send(&ipc.Envelope{Kind: ipc.KindDisconnect}); err != nil {
			m.logger.DebugContext(ctx, "disconnect request failed", "user_id", userID, "error", err)
			_ = proc.Signal(syscall.SIGTERM)
		}
	} else {
		_ = proc.Signal(syscall.SIGTERM)
	}

	if m.waitExit(ctx, inc) {
		return
	}
	m.logger.WarnContext(ctx, "worker ignored stop request, killing", "user_id", userID, "pid", inc.pid)
	if err := proc.Kill(); err != nil {
		m.logger.ErrorContext(ctx, "failed to kill worker", "user_id", userID, "pid", inc.pid, "error", err)
	}
	if !m.waitExit(context.WithoutCancel(ctx), inc) {
		m.logger.ErrorContext(ctx, "worker still running after kill", "user_id", userID, "pid", inc.pid)
	}
}

func (m *DedicatedWorkerManager) waitExit(ctx context.Context, inc *workerProcess) bool {
	timer := time.NewTimer(m.cfg.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-inc.exited:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Workers returns a snapshot of every worker ordered by user.
func (m *DedicatedWorkerManager) Workers() []WorkerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]WorkerInfo, 0, len(m.workers))
	for _, w := range m.workers {
		info := WorkerInfo{
			UserID:       w.UserID,
			Status:       w.status,
			Attached:     w.channel != nil,
			RestartCount: w.restartCount,
			StartTime:    w.startTime,
			LastActivity: w.lastActivity,
		}
		if w.current != nil {
			info.PID = w.current.pid
		}
		if w.session != nil {
			info.Authenticated = w.session.Authenticated()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Session returns the session bound to userID's worker, if any.
func (m *DedicatedWorkerManager) Session(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.workers[userID]
	if w == nil {
		return nil, false
	}
	return w.session, true
}

// Shutdown stops every worker concurrently. Further connects fail.
func (m *DedicatedWorkerManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	workers := make([]*DedicatedWorker, 0, len(m.workers))
	for id, w := range m.workers {
		w.stopping = true
		if w.respawnTimer != nil {
			w.respawnTimer.Stop()
			w.respawnTimer = nil
		}
		workers = append(workers, w)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		m.mu.Lock()
		inc, ch := w.current, w.channel
		m.mu.Unlock()

		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			m.pending.failOwner(userID, fmt.Errorf("coordinator shutting down: %w", ErrWorkerExited))
			m.stopProcess(ctx, userID, inc, ch)
		}(w.UserID)
	}
	wg.Wait()

	m.logger.InfoContext(ctx, "dedicated workers shut down", "workers_stopped", len(workers))
	return nil
}

func (m *DedicatedWorkerManager) clearQR(ctx context.Context, userID string) {
	if err := m.qr.Clear(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "failed to clear auth challenge", "user_id", userID, "error", err)
	}
}

func (m *DedicatedWorkerManager) registerPID(ctx context.Context, userID string, pid int) {
	if pid <= 0 {
		return
	}
	if err := m.pids.RegisterActive(ctx, storage.WorkerKey(userID), pid); err != nil {
		m.logger.WarnContext(ctx, "failed to protect worker process", "user_id", userID, "pid", pid, "error", err)
	}
}

func (m *DedicatedWorkerManager) unregisterPID(ctx context.Context, userID string) {
	if err := m.pids.Unregister(ctx, storage.WorkerKey(userID)); err != nil {
		m.logger.WarnContext(ctx, "failed to release worker process", "user_id", userID, "error", err)
	}
}
