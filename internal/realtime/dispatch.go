package realtime

import (
	"errors"
	"fmt"

	"github.com/prudhvinik1/trackerlive/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	ErrIdentityMismatch = errors.New("user does not match connection identity")
	ErrForbiddenRoom    = errors.New("room cannot be joined or left explicitly")
	ErrNotInRoom        = errors.New("connection is not in room")
	ErrRateLimited      = errors.New("too many signals")
)

// Handle applies one inbound signal from conn. Registry, room and presence
// changes happen before it returns. A returned error is a protocol error for
// conn alone and has changed nothing.
func (h *Hub) Handle(conn ConnID, event models.InboundEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	att, ok := h.conns[conn]
	if !ok {
		return ErrUnknownConnection
	}

	if e, ok := event.(models.Authenticate); ok {
		return h.authenticateLocked(att, e.UserID)
	}

	userID, ok := h.registry.UserOf(conn)
	if !ok {
		return ErrNotAuthenticated
	}

	switch e := event.(type) {
	case models.Heartbeat:
		if e.UserID != userID {
			return ErrIdentityMismatch
		}
		h.heartbeatLocked(userID)
	case models.Navigate:
		if e.UserID != userID {
			return ErrIdentityMismatch
		}
		h.navigateLocked(conn, userID, e.Page, e.IssueID)
	case models.Away:
		if e.UserID != userID {
			return ErrIdentityMismatch
		}
		h.awayLocked(userID)
	case models.Back:
		if e.UserID != userID {
			return ErrIdentityMismatch
		}
		h.backLocked(userID)
	case models.JoinRoom:
		kind, id, err := joinableRoom(e.RoomID)
		if err != nil {
			return err
		}
		if kind == RoomIssueViewers {
			// Viewer rooms follow navigation so a connection watches one issue at a time.
			if att.viewing != "" && att.viewing != id {
				h.leaveViewersLocked(conn, userID, att.viewing)
			}
			if h.rooms.Join(conn, e.RoomID) {
				att.viewing = id
				h.publishLocked(e.RoomID, models.ViewerJoined{IssueID: id, UserID: userID}, conn)
			}
		} else {
			h.rooms.Join(conn, e.RoomID)
		}
		att.conn.Send(models.RoomJoined{RoomID: e.RoomID})
	case models.LeaveRoom:
		kind, id, err := joinableRoom(e.RoomID)
		if err != nil {
			return err
		}
		if kind == RoomIssueViewers {
			h.leaveViewersLocked(conn, userID, id)
		} else {
			h.rooms.Leave(conn, e.RoomID)
		}
		att.conn.Send(models.RoomLeft{RoomID: e.RoomID})
	case models.TypingStart:
		return h.typingLocked(conn, userID, e.RoomID, e.UserID, true)
	case models.TypingStop:
		return h.typingLocked(conn, userID, e.RoomID, e.UserID, false)
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownEvent, event)
	}
	return nil
}

func (h *Hub) authenticateLocked(att *attachment, userID string) error {
	if att.verified != "" && att.verified != userID {
		return ErrIdentityMismatch
	}
	if err := h.registerLocked(userID, att.conn.ID()); err != nil {
		if errors.Is(err, ErrHandleOwned) {
			return ErrIdentityMismatch
		}
		return err
	}
	att.conn.Send(models.Authenticated{UserID: userID, ConnectionID: string(att.conn.ID())})
	return nil
}

func (h *Hub) typingLocked(conn ConnID, userID, room, claimed string, active bool) error {
	if claimed != userID {
		return ErrIdentityMismatch
	}
	if _, _, err := ParseRoom(room); err != nil {
		return err
	}
	if !h.rooms.Has(conn, room) {
		return ErrNotInRoom
	}
	h.publishLocked(room, models.Typing{RoomID: room, UserID: userID, Active: active}, conn)
	return nil
}

func joinableRoom(room string) (kind, id string, err error) {
	kind, id, err = ParseRoom(room)
	if err != nil {
		return "", "", err
	}
	if kind == RoomInbox {
		return "", "", ErrForbiddenRoom
	}
	return kind, id, nil
}

// ProtocolErrorReason maps a Handle or decode error to a short metrics label.
func ProtocolErrorReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, models.ErrMalformedEvent):
		return "malformed"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrForbiddenRoom):
		return "forbidden_room"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "other"
}
