package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/chatpool/internal/chatclient"
	"github.com/AltairaLabs/chatpool/internal/coordinator/config"
	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

const slotDirMode = 0o700

var errPoolClosed = errors.New("pool is shut down")

// SlotPoolConfig configures one SlotPoolManager.
type SlotPoolConfig struct {
	HostingType tier.HostingType
	Pool        config.PoolConfig
	Driver      string
	DataDir     string // slot storage lives under <DataDir>/slots/<hosting type>/<slot id>
	SendTimeout time.Duration
}

// SlotPoolManager packs users of one multiplexed tier onto slots.
type SlotPoolManager struct {
	cfg     SlotPoolConfig
	factory chatclient.Factory
	qr      storage.QRStore
	pids    storage.PIDRegistry
	events  EventSink
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	slots    map[string]*Slot
	userSlot map[string]string // userID -> slot ID
	closed   bool
}

var _ Host = (*SlotPoolManager)(nil)

// NewSlotPoolManager creates an empty pool.
func NewSlotPoolManager(cfg SlotPoolConfig, factory chatclient.Factory, deps HostDeps) *SlotPoolManager {
	deps = deps.withDefaults()
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = config.DefaultSendTimeout
	}
	if cfg.Pool.InitTimeout <= 0 {
		cfg.Pool.InitTimeout = config.DefaultSlotInitTimeout
	}
	return &SlotPoolManager{
		cfg:      cfg,
		factory:  factory,
		qr:       deps.QR,
		pids:     deps.PIDs,
		events:   deps.Events,
		logger:   deps.Logger.With("pool", string(cfg.HostingType)),
		now:      deps.Now,
		slots:    make(map[string]*Slot),
		userSlot: make(map[string]string),
	}
}

// HostingType returns the tier this pool serves.
func (m *SlotPoolManager) HostingType() tier.HostingType {
	return m.cfg.HostingType
}

// Connect places userID on a slot with spare capacity, creating one if the
// pool is below its ceiling.
func (m *SlotPoolManager) Connect(ctx context.Context, userID string, policy tier.Policy) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errPoolClosed
	}
	m.removeUserLocked(userID)

	if slot := m.pickSlotLocked(); slot != nil {
		sess, challenge := m.joinLocked(slot, userID, policy)
		m.mu.Unlock()
		m.afterJoin(ctx, slot.ID, sess, challenge)
		return sess, nil
	}

	if n := len(m.slots); n >= m.cfg.Pool.MaxSlots {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s pool at %d/%d slots: %w",
			m.cfg.HostingType, n, m.cfg.Pool.MaxSlots, ErrCapacityExceeded)
	}
	slot := m.reserveSlotLocked()
	m.mu.Unlock()

	if err := m.provision(ctx, slot); err != nil {
		return nil, fmt.Errorf("create %s slot: %w", m.cfg.HostingType, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errPoolClosed
	}
	target := m.pickSlotLocked()
	if target == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s pool has no free slot after scale-up: %w", m.cfg.HostingType, ErrCapacityExceeded)
	}
	sess, challenge := m.joinLocked(target, userID, policy)
	m.mu.Unlock()

	m.afterJoin(ctx, target.ID, sess, challenge)
	return sess, nil
}

func (m *SlotPoolManager) pickSlotLocked() *Slot {
	var best *Slot
	for _, s := range m.slots {
		if !s.usable() || !s.hasRoom() {
			continue
		}
		if best == nil || s.better(best) {
			best = s
		}
	}
	return best
}

func (m *SlotPoolManager) joinLocked(slot *Slot, userID string, policy tier.Policy) (*Session, string) {
	now := m.now()
	sess := newSession(userID, policy, m.cfg.HostingType, slot.ID, now)
	sess.authenticated = slot.status == SlotReady
	slot.users[userID] = sess
	slot.lastActivity = now
	m.userSlot[userID] = slot.ID

	var challenge string
	if slot.status == SlotInitializing {
		challenge = slot.challenge
	}
	return sess, challenge
}

func (m *SlotPoolManager) afterJoin(ctx context.Context, slotID string, sess *Session, challenge string) {
	m.logger.InfoContext(ctx, "user joined slot",
		"user_id", sess.UserID,
		"slot_id", slotID,
		"authenticated", sess.Authenticated())
	if challenge != "" {
		m.deliverChallenge(ctx, slotID, []*Session{sess}, challenge)
	}
}

func (m *SlotPoolManager) removeUserLocked(userID string) *Slot {
	slotID, ok := m.userSlot[userID]
	if !ok {
		return nil
	}
	delete(m.userSlot, userID)
	slot := m.slots[slotID]
	if slot == nil {
		return nil
	}
	delete(slot.users, userID)
	slot.lastActivity = m.now()
	return slot
}

func (m *SlotPoolManager) reserveSlotLocked() *Slot {
	now := m.now()
	id := fmt.Sprintf("%s-%s", m.cfg.HostingType, uuid.NewString())
	slot := &Slot{
		ID:           id,
		hosting:      m.cfg.HostingType,
		storagePath:  filepath.Join(m.cfg.DataDir, "slots", string(m.cfg.HostingType), id),
		capacity:     m.cfg.Pool.UsersPerSlot,
		createdAt:    now,
		generation:   1,
		status:       SlotInitializing,
		users:        make(map[string]*Session),
		lastActivity: now,
	}
	m.slots[id] = slot
	return slot
}

// provision creates and initializes the client of a reserved slot. On failure
// the reservation is released.
func (m *SlotPoolManager) provision(ctx context.Context, slot *Slot) error {
	client, err := m.startClient(ctx, slot, 1)
	if err != nil {
		m.mu.Lock()
		delete(m.slots, slot.ID)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.slots[slot.ID] != slot {
		// Shut down while initializing.
		m.mu.Unlock()
		m.destroyClient(ctx, slot.ID, client)
		return errPoolClosed
	}
	slot.client = client
	slot.provisioned = true
	slot.pid = clientPID(client)
	m.mu.Unlock()

	m.registerPID(ctx, slot.ID, slot.pid)
	m.logger.InfoContext(ctx, "slot created", "slot_id", slot.ID, "capacity", slot.capacity)
	return nil
}

func (m *SlotPoolManager) startClient(ctx context.Context, slot *Slot, generation uint64) (chatclient.Client, error) {
	if err := os.MkdirAll(slot.storagePath, slotDirMode); err != nil {
		return nil, fmt.Errorf("create slot storage: %w", err)
	}

	client, err := m.factory.Create(m.cfg.Driver, chatclient.Options{
		ID:          slot.ID,
		StoragePath: slot.storagePath,
		OnEvent:     m.eventHandler(slot.ID, generation),
	})
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, m.cfg.Pool.InitTimeout)
	defer cancel()
	if err := client.Initialize(initCtx); err != nil {
		m.destroyClient(ctx, slot.ID, client)
		return nil, fmt.Errorf("initialize session client: %w", err)
	}
	return client, nil
}

func (m *SlotPoolManager) eventHandler(slotID string, generation uint64) chatclient.EventHandler {
	return func(ev chatclient.Event) {
		m.handleEvent(slotID, generation, ev)
	}
}

func (m *SlotPoolManager) handleEvent(slotID string, generation uint64, ev chatclient.Event) {
	ctx := context.Background()
	now := m.now()

	m.mu.Lock()
	slot := m.slots[slotID]
	if slot == nil || slot.generation != generation {
		m.mu.Unlock()
		return
	}

	switch ev.Kind {
	case chatclient.EventAuthChallenge:
		slot.status = SlotInitializing
		slot.challenge = ev.Challenge
		members := slot.members()
		m.mu.Unlock()
		for _, sess := range members {
			sess.setAuthenticated(false)
		}
		m.deliverChallenge(ctx, slotID, members, ev.Challenge)

	case chatclient.EventReady:
		slot.status = SlotReady
		slot.challenge = ""
		slot.authFailed = false
		members := slot.members()
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "slot ready", "slot_id", slotID, "users", len(members))
		for _, sess := range members {
			sess.setAuthenticated(true)
			m.clearQR(ctx, sess.UserID)
			m.events.Publish(ctx, sessionEvent(SessionReady, sess, now))
		}

	case chatclient.EventAuthFailed:
		slot.status = SlotError
		slot.authFailed = true
		slot.challenge = ""
		members := slot.members()
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "slot authentication failed", "slot_id", slotID, "reason", ev.Reason)
		for _, sess := range members {
			sess.setAuthenticated(false)
			m.clearQR(ctx, sess.UserID)
			out := sessionEvent(SessionAuthFailed, sess, now)
			out.Reason = ev.Reason
			m.events.Publish(ctx, out)
		}

	case chatclient.EventDisconnected:
		slot.status = SlotDisconnected
		members := slot.members()
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "slot disconnected", "slot_id", slotID, "reason", ev.Reason)
		for _, sess := range members {
			sess.setAuthenticated(false)
			out := sessionEvent(SessionDisconnected, sess, now)
			out.Reason = ev.Reason
			m.events.Publish(ctx, out)
		}

	case chatclient.EventIncomingMessage:
		if ev.Message == nil {
			m.mu.Unlock()
			return
		}
		sess := slot.users[ev.Message.Recipient]
		if sess == nil {
			m.mu.Unlock()
			m.logger.DebugContext(ctx, "dropping unroutable message",
				"slot_id", slotID, "recipient", ev.Message.Recipient)
			return
		}
		slot.lastActivity = now
		m.mu.Unlock()
		sess.recordMessage(now)
		out := sessionEvent(SessionMessage, sess, now)
		out.Message = ev.Message
		m.events.Publish(ctx, out)

	default:
		m.mu.Unlock()
	}
}

// deliverChallenge fans one challenge out to every listed member. Members of
// a multiplexed slot share the underlying account, so they all see the same payload.
func (m *SlotPoolManager) deliverChallenge(ctx context.Context, slotID string, members []*Session, challenge string) {
	if len(members) > 1 {
		m.logger.WarnContext(ctx, config.MsgSharedChallenge, "slot_id", slotID, "recipients", len(members))
	}
	now := m.now()
	for _, sess := range members {
		if err := m.qr.Save(ctx, sess.UserID, challenge); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist auth challenge", "user_id", sess.UserID, "error", err)
		}
		out := sessionEvent(SessionQR, sess, now)
		out.Challenge = challenge
		m.events.Publish(ctx, out)
	}
}

// Disconnect removes userID from its slot. An emptied slot keeps its client
// and authentication so it can be reused until the optimizer reclaims it.
// No call is made on the client: the logout is soft.
func (m *SlotPoolManager) Disconnect(ctx context.Context, userID string) error {
	m.mu.Lock()
	slot := m.removeUserLocked(userID)
	if slot == nil {
		m.mu.Unlock()
		return nil
	}
	remaining := len(slot.users)
	status := slot.status
	m.mu.Unlock()

	m.clearQR(ctx, userID)
	m.logger.InfoContext(ctx, "user left slot", "user_id", userID, "slot_id", slot.ID, "remaining", remaining)
	if remaining == 0 {
		m.logger.InfoContext(ctx, "slot idle, retained for reuse", "slot_id", slot.ID, "status", status)
	}
	return nil
}

// SendMessage dispatches through the user's slot client.
func (m *SlotPoolManager) SendMessage(ctx context.Context, userID, to, body string) (*SendResult, error) {
	m.mu.Lock()
	slotID, ok := m.userSlot[userID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("user %s: %w", userID, ErrSessionNotFound)
	}
	slot := m.slots[slotID]
	sess := slot.users[userID]
	if slot.status != SlotReady || slot.client == nil {
		err := fmt.Errorf("slot %s is %s: %w", slotID, slot.status, ErrHostNotReady)
		if slot.authFailed {
			err = fmt.Errorf("slot %s: %w: %w", slotID, ErrHostNotReady, ErrAuthFailure)
		}
		m.mu.Unlock()
		return nil, err
	}
	client := slot.client
	slot.lastActivity = m.now()
	m.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()

	receipt, err := client.SendMessage(sendCtx, to, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("slot %s after %s: %w", slotID, m.cfg.SendTimeout, ErrSendTimeout)
		}
		return nil, fmt.Errorf("send via slot %s: %w", slotID, err)
	}

	sess.recordMessage(m.now())
	return &SendResult{
		MessageID:   receipt.MessageID,
		Timestamp:   receipt.Timestamp,
		HostingType: m.cfg.HostingType,
		HostRef:     slotID,
	}, nil
}

// Reinitialize replaces the client of a slot in error or disconnected state
// with a fresh one on the same storage path. Members stay attached.
func (m *SlotPoolManager) Reinitialize(ctx context.Context, slotID string) error {
	m.mu.Lock()
	slot := m.slots[slotID]
	if slot == nil || !slot.provisioned || slot.recovering ||
		(slot.status != SlotError && slot.status != SlotDisconnected) {
		m.mu.Unlock()
		return nil
	}
	slot.recovering = true
	slot.generation++
	generation := slot.generation
	slot.status = SlotInitializing
	slot.authFailed = false
	old := slot.client
	slot.client = nil
	oldPID := slot.pid
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "reinitializing slot", "slot_id", slotID, "generation", generation)
	if old != nil {
		m.destroyClient(ctx, slotID, old)
	}
	if oldPID > 0 {
		m.unregisterPID(ctx, slotID)
	}

	client, err := m.startClient(ctx, slot, generation)

	m.mu.Lock()
	slot.recovering = false
	if m.slots[slotID] != slot {
		m.mu.Unlock()
		if client != nil {
			m.destroyClient(ctx, slotID, client)
		}
		return errPoolClosed
	}
	if err != nil {
		slot.status = SlotError
		slot.pid = 0
		m.mu.Unlock()
		return fmt.Errorf("reinitialize slot %s: %w", slotID, err)
	}
	slot.client = client
	slot.pid = clientPID(client)
	pid := slot.pid
	m.mu.Unlock()

	m.registerPID(ctx, slotID, pid)
	return nil
}

// EvictIdle destroys every empty slot idle for at least the pool's idle
// timeout and returns the evicted slot IDs.
func (m *SlotPoolManager) EvictIdle(ctx context.Context) []string {
	now := m.now()

	m.mu.Lock()
	var victims []*Slot
	for id, slot := range m.slots {
		if !slot.provisioned || slot.recovering || len(slot.users) > 0 {
			continue
		}
		if now.Sub(slot.lastActivity) >= m.cfg.Pool.IdleTimeout {
			victims = append(victims, slot)
			delete(m.slots, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(victims))
	for _, slot := range victims {
		if slot.client != nil {
			m.destroyClient(ctx, slot.ID, slot.client)
		}
		m.unregisterPID(ctx, slot.ID)
		m.logger.InfoContext(ctx, "evicted idle slot",
			"slot_id", slot.ID,
			"idle_for", now.Sub(slot.lastActivity).String())
		ids = append(ids, slot.ID)
	}
	sort.Strings(ids)
	return ids
}

// ScaleUp creates one slot ahead of demand when utilization of the usable
// slots has reached the pool's high-water mark. It reports whether a slot was added.
func (m *SlotPoolManager) ScaleUp(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.closed || len(m.slots) >= m.cfg.Pool.MaxSlots {
		m.mu.Unlock()
		return false, nil
	}
	used, total := 0, 0
	for _, slot := range m.slots {
		if !slot.usable() {
			continue
		}
		used += len(slot.users)
		total += slot.capacity
	}
	if total == 0 || float64(used)/float64(total) < m.cfg.Pool.ScaleUpThreshold {
		m.mu.Unlock()
		return false, nil
	}
	slot := m.reserveSlotLocked()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "scaling up pool", "used", used, "capacity", total)
	if err := m.provision(ctx, slot); err != nil {
		return false, fmt.Errorf("scale up %s pool: %w", m.cfg.HostingType, err)
	}
	return true, nil
}

// Slots returns a snapshot of every slot ordered by creation time.
func (m *SlotPoolManager) Slots() []SlotInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SlotInfo, 0, len(m.slots))
	for _, slot := range m.slots {
		out = append(out, slot.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Session returns the pooled session of userID, if any.
func (m *SlotPoolManager) Session(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slotID, ok := m.userSlot[userID]
	if !ok {
		return nil, false
	}
	sess := m.slots[slotID].users[userID]
	return sess, sess != nil
}

// Shutdown destroys every slot. Further connects fail.
func (m *SlotPoolManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	slots := m.slots
	m.slots = make(map[string]*Slot)
	m.userSlot = make(map[string]string)
	m.mu.Unlock()

	for _, slot := range slots {
		if slot.client != nil {
			m.destroyClient(ctx, slot.ID, slot.client)
		}
		m.unregisterPID(ctx, slot.ID)
	}
	m.logger.InfoContext(ctx, "pool shut down", "slots_destroyed", len(slots))
	return nil
}

func (m *SlotPoolManager) destroyClient(ctx context.Context, slotID string, client chatclient.Client) {
	if err := client.Destroy(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to destroy session client", "slot_id", slotID, "error", err)
	}
}

func (m *SlotPoolManager) clearQR(ctx context.Context, userID string) {
	if err := m.qr.Clear(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "failed to clear auth challenge", "user_id", userID, "error", err)
	}
}

func (m *SlotPoolManager) registerPID(ctx context.Context, slotID string, pid int) {
	if pid <= 0 {
		return
	}
	if err := m.pids.RegisterActive(ctx, storage.SlotKey(slotID), pid); err != nil {
		m.logger.WarnContext(ctx, "failed to protect slot process", "slot_id", slotID, "pid", pid, "error", err)
	}
}

func (m *SlotPoolManager) unregisterPID(ctx context.Context, slotID string) {
	if err := m.pids.Unregister(ctx, storage.SlotKey(slotID)); err != nil {
		m.logger.WarnContext(ctx, "failed to release slot process", "slot_id", slotID, "error", err)
	}
}

func clientPID(client chatclient.Client) int {
	if p, ok := client.(chatclient.ProcessInfo); ok {
		return p.PID()
	}
	return 0
}
