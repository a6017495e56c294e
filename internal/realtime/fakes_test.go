package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/repositories"
	"github.com/stretchr/testify/require"
)

// recordingConn captures everything the hub sends it.
type recordingConn struct {
	id ConnID

	mu     sync.Mutex
	events []models.OutboundEvent
	broken bool
}

func newRecordingConn(id string) *recordingConn {
	return &recordingConn{id: ConnID(id)}
}

func (c *recordingConn) ID() ConnID { return c.id }

func (c *recordingConn) Send(event models.OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return false
	}
	c.events = append(c.events, event)
	return true
}

func (c *recordingConn) Events() []models.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OutboundEvent(nil), c.events...)
}

func (c *recordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// presenceUpdates counts presence-update events about userID with status.
func (c *recordingConn) presenceUpdates(userID string, status models.PresenceStatus) int {
	n := 0
	for _, e := range c.Events() {
		if u, ok := e.(models.PresenceUpdate); ok && u.UserID == userID && u.Status == status {
			n++
		}
	}
	return n
}

func (c *recordingConn) countType(eventType string) int {
	n := 0
	for _, e := range c.Events() {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

type fakePresenceRepo struct {
	mu       sync.Mutex
	rows     map[string]models.Presence
	fail     bool
	failures int
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{rows: make(map[string]models.Presence)}
}

func (r *fakePresenceRepo) Upsert(_ context.Context, p *models.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		r.failures++
		return errors.New("store unavailable")
	}
	if existing, ok := r.rows[p.UserID]; ok && p.LastSeen.Before(existing.LastSeen) {
		return nil
	}
	r.rows[p.UserID] = *p
	return nil
}

func (r *fakePresenceRepo) Get(_ context.Context, userID string) (*models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (r *fakePresenceRepo) status(userID string) models.PresenceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[userID].Status
}

func (r *fakePresenceRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *fakePresenceRepo) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// entryExists reports whether the hub still holds an in-memory presence entry.
func entryExists(hub *Hub, userID string) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	_, ok := hub.presence[userID]
	return ok
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHub(t *testing.T, opts Options) (*Hub, *fakePresenceRepo, *fakeClock) {
	t.Helper()
	repo := newFakePresenceRepo()
	clock := newFakeClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(repo, opts), repo, clock
}

// connect attaches a recording connection and authenticates it as userID.
func connect(t *testing.T, hub *Hub, connID, userID string) *recordingConn {
	t.Helper()
	conn := newRecordingConn(connID)
	hub.Attach(conn, "")
	require.NoError(t, hub.Handle(conn.ID(), models.Authenticate{UserID: userID}))
	return conn
}

func strPtr(s string) *string { return &s }
