package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prudhvinik1/trackerlive/internal/metrics"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/repositories"
)

const (
	DefaultGraceWindow    = 30 * time.Second
	DefaultStaleThreshold = 5 * time.Minute
	DefaultPersistQueue   = 1024
	persistTimeout        = 5 * time.Second
)

var ErrUnknownConnection = errors.New("unknown connection")

// Conn is one live connection as the hub sees it.
type Conn interface {
	ID() ConnID
	// Send queues event for delivery and must not block. It returns false
	// when the event was dropped.
	Send(event models.OutboundEvent) bool
}

type Options struct {
	GraceWindow    time.Duration
	StaleThreshold time.Duration
	PersistQueue   int
	Now            func() time.Time
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type attachment struct {
	conn Conn
	// verified is the identity proven at connect time, if any.
	verified string
	// viewing is the issue this connection currently has open.
	viewing string
}

type presenceEntry struct {
	models.Presence
	// generation invalidates removal timers scheduled before a reconnect.
	generation uint64
	removal    *time.Timer
	// version counts snapshots handed to the persister; pending stays set
	// until the latest one is in the store.
	version    uint64
	pending    bool
}

type persistRequest struct {
	entry    *presenceEntry
	snapshot models.Presence
	version  uint64
}

// Hub owns the connection registry, room membership and in-memory presence.
// One mutex guards all three so a disconnect never leaves a connection
// registered but out of its rooms (or the reverse), and presence transitions
// for a user are linearized with registration.
type Hub struct {
	mu       sync.Mutex
	conns    map[ConnID]*attachment
	registry *Registry
	rooms    *Rooms
	presence map[string]*presenceEntry

	repo      repositories.PresenceRepository
	persistCh chan persistRequest
	closed    chan struct{}
	closeOnce sync.Once
	closing   bool

	graceWindow    time.Duration
	staleThreshold time.Duration
	now            func() time.Time
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

func NewHub(repo repositories.PresenceRepository, opts Options) *Hub {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	if opts.PersistQueue <= 0 {
		opts.PersistQueue = DefaultPersistQueue
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Hub{
		conns:          make(map[ConnID]*attachment),
		registry:       NewRegistry(),
		rooms:          NewRooms(),
		presence:       make(map[string]*presenceEntry),
		repo:           repo,
		persistCh:      make(chan persistRequest, opts.PersistQueue),
		closed:         make(chan struct{}),
		graceWindow:    opts.GraceWindow,
		staleThreshold: opts.StaleThreshold,
		now:            opts.Now,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// Attach makes conn reachable for delivery. verifiedUserID, when non-empty,
// is the only identity the connection may later authenticate as.
func (h *Hub) Attach(conn Conn, verifiedUserID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return
	}
	if _, ok := h.conns[conn.ID()]; ok {
		return
	}
	h.conns[conn.ID()] = &attachment{conn: conn, verified: verifiedUserID}
	h.metrics.SetConnections(len(h.conns))
}

// Register binds an attached connection to userID and joins its inbox room.
// The user's first connection turns their presence online.
func (h *Hub) Register(userID string, conn ConnID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registerLocked(userID, conn)
}

func (h *Hub) registerLocked(userID string, conn ConnID) error {
	if _, ok := h.conns[conn]; !ok {
		return ErrUnknownConnection
	}

	first, err := h.registry.Register(userID, conn)
	if err != nil {
		return err
	}
	h.rooms.Join(conn, InboxRoom(userID))
	h.metrics.SetLiveUsers(h.registry.Users())

	if first {
		h.activateLocked(userID, conn)
	}
	return nil
}

// Unregister is the disconnect path: the connection leaves the registry, every
// room and the delivery table together. Unknown connections are ignored since
// transports report the same disconnect more than once.
func (h *Hub) Unregister(conn ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(conn)
}

func (h *Hub) unregisterLocked(conn ConnID) {
	att, attached := h.conns[conn]
	if attached && att.viewing != "" {
		if userID, ok := h.registry.UserOf(conn); ok {
			h.leaveViewersLocked(conn, userID, att.viewing)
		}
	}

	userID, last, registered := h.registry.Unregister(conn)
	h.rooms.LeaveAll(conn)
	delete(h.conns, conn)

	if attached {
		h.metrics.SetConnections(len(h.conns))
	}
	if !registered {
		return
	}
	h.metrics.SetLiveUsers(h.registry.Users())
	if last {
		h.deactivateLocked(userID)
	}
}

// Close unregisters every attached connection, so each user's offline
// snapshot is queued, and then tells RunPersister to flush and return. Later
// attachments are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closing = true
	ids := make([]ConnID, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.unregisterLocked(id)
	}
	h.mu.Unlock()

	h.closeOnce.Do(func() { close(h.closed) })
}

// Join adds conn to room. Joining twice is a no-op.
func (h *Hub) Join(conn ConnID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn]; !ok {
		return ErrUnknownConnection
	}
	h.rooms.Join(conn, room)
	return nil
}

// Leave removes conn from room. Leaving a room it is not in is a no-op.
func (h *Hub) Leave(conn ConnID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms.Leave(conn, room)
}

// Publish delivers event to every connection in room and returns how many
// accepted it. A connection that cannot take the event is skipped.
func (h *Hub) Publish(room string, event models.OutboundEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(room, event, "")
}

// PublishExcept is Publish without delivering to except.
func (h *Hub) PublishExcept(room string, event models.OutboundEvent, except ConnID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(room, event, except)
}

// PublishToUser delivers event to the user's inbox room.
func (h *Hub) PublishToUser(userID string, event models.OutboundEvent) int {
	return h.Publish(InboxRoom(userID), event)
}

// Broadcast delivers event to every authenticated connection.
func (h *Hub) Broadcast(event models.OutboundEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broadcastLocked(event)
}

func (h *Hub) publishLocked(room string, event models.OutboundEvent, except ConnID) int {
	delivered := 0
	for _, id := range h.rooms.Members(room) {
		if id == except {
			continue
		}
		if h.sendLocked(id, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) broadcastLocked(event models.OutboundEvent) int {
	delivered := 0
	for id := range h.conns {
		if _, ok := h.registry.UserOf(id); !ok {
			continue
		}
		if h.sendLocked(id, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) sendLocked(id ConnID, event models.OutboundEvent) bool {
	att, ok := h.conns[id]
	if !ok {
		return false
	}
	if !att.conn.Send(event) {
		h.metrics.MessageDropped()
		h.logger.Debug("message_dropped", "conn_id", string(id), "event", event.EventType())
		return false
	}
	h.metrics.MessagePublished()
	return true
}

func (h *Hub) IsLive(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.IsLive(userID)
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.IsLive(userID)
}

func (h *Hub) HandlesFor(userID string) []ConnID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.HandlesFor(userID)
}

func (h *Hub) Members(room string) []ConnID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.Members(room)
}

func (h *Hub) RoomsOf(conn ConnID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.RoomsOf(conn)
}

// PresenceOf answers from memory, then the presence store, and otherwise
// reports the user offline. Every live user has an in-memory entry, so a
// stored row is reported offline whatever status it was written with.
func (h *Hub) PresenceOf(ctx context.Context, userID string) *models.Presence {
	h.mu.Lock()
	if entry, ok := h.presence[userID]; ok {
		snapshot := entry.Presence
		h.mu.Unlock()
		return &snapshot
	}
	h.mu.Unlock()

	if h.repo != nil {
		presence, err := h.repo.Get(ctx, userID)
		if err == nil {
			presence.Status = models.StatusOffline
			return presence
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			h.logger.Warn("presence_lookup_failed", "user_id", userID, "error", err)
		}
	}
	return models.OfflinePresence(userID)
}

// RunPersister writes presence snapshots to the store in the order they were
// produced, until ctx is done or Close is called. Failures are logged and the
// entry stays pending; in-memory state stays authoritative and the next event
// or sweep writes again.
func (h *Hub) RunPersister(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.drainPersistQueue()
			return nil
		case <-h.closed:
			h.drainPersistQueue()
			return nil
		case req := <-h.persistCh:
			h.write(ctx, req)
		}
	}
}

func (h *Hub) drainPersistQueue() {
	for {
		select {
		case req := <-h.persistCh:
			h.write(context.Background(), req)
		default:
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, req persistRequest) {
	if h.repo != nil {
		ctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if err := h.repo.Upsert(ctx, &req.snapshot); err != nil {
			h.logger.Error("presence_persist_failed", "user_id", req.snapshot.UserID, "status", req.snapshot.Status, "error", err)
			return
		}
	}

	h.mu.Lock()
	if req.entry.version == req.version {
		req.entry.pending = false
	}
	h.mu.Unlock()
}

// persistLocked queues the entry's current state for the store. The entry is
// pending until that write succeeds.
func (h *Hub) persistLocked(entry *presenceEntry) {
	entry.version++
	entry.pending = true
	select {
	case h.persistCh <- persistRequest{entry: entry, snapshot: entry.Presence, version: entry.version}:
	default:
		h.logger.Warn("presence_persist_queue_full", "user_id", entry.UserID)
	}
}
