package realtime

import (
	"context"
	"time"

	"github.com/prudhvinik1/trackerlive/internal/models"
)

// Presence transitions. All *Locked methods expect h.mu to be held; broadcasts
// are issued under the lock so a user's updates go out in production order.

func (h *Hub) entryLocked(userID string) *presenceEntry {
	entry, ok := h.presence[userID]
	if !ok {
		entry = &presenceEntry{Presence: models.Presence{UserID: userID, Status: models.StatusOffline}}
		h.presence[userID] = entry
	}
	return entry
}

// touchLocked advances last_seen; it never moves it backwards.
func (h *Hub) touchLocked(entry *presenceEntry) {
	if now := h.now(); now.After(entry.LastSeen) {
		entry.LastSeen = now
	}
}

func (h *Hub) setStatusLocked(entry *presenceEntry, status models.PresenceStatus) {
	entry.Status = status
	h.metrics.PresenceTransition(string(status))
	h.persistLocked(entry)
	h.broadcastLocked(models.PresenceUpdate{
		UserID:   entry.UserID,
		Status:   status,
		LastSeen: entry.LastSeen,
	})
}

// activateLocked handles the user's first live connection.
func (h *Hub) activateLocked(userID string, conn ConnID) {
	entry := h.entryLocked(userID)
	entry.generation++
	if entry.removal != nil {
		entry.removal.Stop()
		entry.removal = nil
	}
	entry.ConnectionHint = string(conn)
	h.touchLocked(entry)

	if entry.Status == models.StatusOnline {
		h.persistLocked(entry)
		return
	}
	h.setStatusLocked(entry, models.StatusOnline)
}

// deactivateLocked handles the removal of the user's last connection. The
// in-memory entry lingers for the grace window so a quick reconnect reuses it.
func (h *Hub) deactivateLocked(userID string) {
	entry := h.entryLocked(userID)
	if entry.Status != models.StatusOffline {
		h.setStatusLocked(entry, models.StatusOffline)
	}
	h.scheduleRemovalLocked(entry)
}

func (h *Hub) scheduleRemovalLocked(entry *presenceEntry) {
	entry.generation++
	generation := entry.generation
	if entry.removal != nil {
		entry.removal.Stop()
	}
	entry.removal = time.AfterFunc(h.graceWindow, func() {
		h.expire(entry.UserID, generation)
	})
}

func (h *Hub) expire(userID string, generation uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.presence[userID]
	if !ok || entry.generation != generation {
		return
	}
	if h.registry.IsLive(userID) || entry.Status != models.StatusOffline {
		return
	}
	if entry.pending {
		// The offline row is not in the store yet; keep the entry so the
		// sweep can write it again.
		h.scheduleRemovalLocked(entry)
		return
	}
	delete(h.presence, userID)
}

// heartbeatLocked refreshes last_seen. It only broadcasts when it revives a
// user the sweep had marked offline while a connection stayed open.
func (h *Hub) heartbeatLocked(userID string) {
	entry := h.entryLocked(userID)
	h.touchLocked(entry)
	if entry.Status == models.StatusOffline {
		h.setStatusLocked(entry, models.StatusOnline)
		return
	}
	h.persistLocked(entry)
}

func (h *Hub) awayLocked(userID string) {
	entry := h.entryLocked(userID)
	h.touchLocked(entry)
	if entry.Status == models.StatusAway {
		h.persistLocked(entry)
		return
	}
	h.setStatusLocked(entry, models.StatusAway)
}

func (h *Hub) backLocked(userID string) {
	entry := h.entryLocked(userID)
	h.touchLocked(entry)
	if entry.Status == models.StatusOnline {
		h.persistLocked(entry)
		return
	}
	h.setStatusLocked(entry, models.StatusOnline)
}

// navigateLocked records what the user is looking at and moves conn between
// issue-viewers rooms.
func (h *Hub) navigateLocked(conn ConnID, userID, page string, issueID *string) {
	entry := h.entryLocked(userID)
	h.touchLocked(entry)

	entry.CurrentPage = nil
	if page != "" {
		p := page
		entry.CurrentPage = &p
	}
	entry.CurrentIssueID = nil
	if issueID != nil {
		id := *issueID
		entry.CurrentIssueID = &id
	}

	if entry.Status != models.StatusOnline {
		h.setStatusLocked(entry, models.StatusOnline)
	} else {
		h.persistLocked(entry)
	}
	h.broadcastLocked(models.Navigated{
		UserID:  userID,
		Page:    entry.CurrentPage,
		IssueID: entry.CurrentIssueID,
	})

	att, ok := h.conns[conn]
	if !ok {
		return
	}
	next := ""
	if issueID != nil {
		next = *issueID
	}
	if att.viewing == next {
		return
	}
	if att.viewing != "" {
		h.leaveViewersLocked(conn, userID, att.viewing)
	}
	if next != "" {
		room := IssueViewersRoom(next)
		h.rooms.Join(conn, room)
		att.viewing = next
		h.publishLocked(room, models.ViewerJoined{IssueID: next, UserID: userID}, conn)
	}
}

func (h *Hub) leaveViewersLocked(conn ConnID, userID, issueID string) {
	room := IssueViewersRoom(issueID)
	if att, ok := h.conns[conn]; ok && att.viewing == issueID {
		att.viewing = ""
	}
	if h.rooms.Leave(conn, room) {
		h.publishLocked(room, models.ViewerLeft{IssueID: issueID, UserID: userID}, "")
	}
}

// Sweep forces every non-offline presence whose last_seen is older than the
// stale threshold to offline and returns how many it demoted. It is the safety
// net for connections that vanished without a disconnect. Entries whose last
// snapshot never reached the store are queued again.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	demoted, retried := 0, 0
	for userID, entry := range h.presence {
		if entry.Status == models.StatusOffline || now.Sub(entry.LastSeen) <= h.staleThreshold {
			if entry.pending {
				h.persistLocked(entry)
				retried++
			}
			continue
		}
		h.setStatusLocked(entry, models.StatusOffline)
		h.metrics.SweepDemotion()
		demoted++
		if !h.registry.IsLive(userID) {
			h.scheduleRemovalLocked(entry)
		}
	}
	if demoted > 0 || retried > 0 {
		h.logger.Info("presence_sweep", "demoted", demoted, "persist_retried", retried)
	}
	return demoted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep(h.now())
		}
	}
}
