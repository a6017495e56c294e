package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event")
)

// Inbound event names.
const (
	EventAuthenticate = "authenticate"
	EventHeartbeat    = "heartbeat"
	EventNavigate     = "navigate"
	EventAway         = "away"
	EventBack         = "back"
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
)

// Outbound event names.
const (
	EventAuthenticated  = "authenticated"
	EventPresenceUpdate = "presence-update"
	EventNavigated      = "navigated"
	EventViewerJoined   = "viewer-joined"
	EventViewerLeft     = "viewer-left"
	EventTyping         = "typing"
	EventNotification   = "notification"
	EventUnreadCount    = "unread-count"
	EventRoomJoined     = "room-joined"
	EventRoomLeft       = "room-left"
	EventError          = "error"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is one of the signals a connection may send. The set is closed:
// only the types in this file implement it.
type InboundEvent interface {
	inboundEvent()
}

type Authenticate struct {
	UserID string `json:"user_id"`
}

type Heartbeat struct {
	UserID string `json:"user_id"`
}

type Navigate struct {
	UserID  string  `json:"user_id"`
	Page    string  `json:"page"`
	IssueID *string `json:"issue_id,omitempty"`
}

type Away struct {
	UserID string `json:"user_id"`
}

type Back struct {
	UserID string `json:"user_id"`
}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type LeaveRoom struct {
	RoomID string `json:"room_id"`
}

type TypingStart struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type TypingStop struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func (Authenticate) inboundEvent() {}
func (Heartbeat) inboundEvent()    {}
func (Navigate) inboundEvent()     {}
func (Away) inboundEvent()         {}
func (Back) inboundEvent()         {}
func (JoinRoom) inboundEvent()     {}
func (LeaveRoom) inboundEvent()    {}
func (TypingStart) inboundEvent()  {}
func (TypingStop) inboundEvent()   {}

// DecodeInbound parses a {"type": ..., "data": ...} frame into its concrete event
// and checks that the fields every handler depends on are present.
func DecodeInbound(frame []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		event   InboundEvent
		missing string
	)
	switch env.Type {
	case EventAuthenticate:
		var e Authenticate
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("user_id", e.UserID)
	case EventHeartbeat:
		var e Heartbeat
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("user_id", e.UserID)
	case EventNavigate:
		var e Navigate
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		if e.IssueID != nil && *e.IssueID == "" {
			e.IssueID = nil
		}
		event, missing = e, requireFields("user_id", e.UserID)
	case EventAway:
		var e Away
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("user_id", e.UserID)
	case EventBack:
		var e Back
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("user_id", e.UserID)
	case EventJoinRoom:
		var e JoinRoom
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("room_id", e.RoomID)
	case EventLeaveRoom:
		var e LeaveRoom
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("room_id", e.RoomID)
	case EventTypingStart:
		var e TypingStart
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("room_id", e.RoomID, "user_id", e.UserID)
	case EventTypingStop:
		var e TypingStop
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event, missing = e, requireFields("room_id", e.RoomID, "user_id", e.UserID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if missing != "" {
		return nil, fmt.Errorf("%w: %s %s is required", ErrMalformedEvent, env.Type, missing)
	}
	return event, nil
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// requireFields takes name/value pairs and returns the first name whose value is empty.
func requireFields(pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return pairs[i]
		}
	}
	return ""
}

// OutboundEvent is a message the engine sends to connections.
type OutboundEvent interface {
	EventType() string
}

type Authenticated struct {
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

type PresenceUpdate struct {
	UserID   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

type Navigated struct {
	UserID  string  `json:"user_id"`
	Page    *string `json:"page,omitempty"`
	IssueID *string `json:"issue_id,omitempty"`
}

type ViewerJoined struct {
	IssueID string `json:"issue_id"`
	UserID  string `json:"user_id"`
}

type ViewerLeft struct {
	IssueID string `json:"issue_id"`
	UserID  string `json:"user_id"`
}

type Typing struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}

type NotificationDelivery struct {
	Notification *Notification `json:"notification"`
	UnreadCount  int64         `json:"unread_count"`
}

type UnreadCount struct {
	Count int64 `json:"count"`
}

type RoomJoined struct {
	RoomID string `json:"room_id"`
}

type RoomLeft struct {
	RoomID string `json:"room_id"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (Authenticated) EventType() string        { return EventAuthenticated }
func (PresenceUpdate) EventType() string       { return EventPresenceUpdate }
func (Navigated) EventType() string            { return EventNavigated }
func (ViewerJoined) EventType() string         { return EventViewerJoined }
func (ViewerLeft) EventType() string           { return EventViewerLeft }
func (Typing) EventType() string               { return EventTyping }
func (NotificationDelivery) EventType() string { return EventNotification }
func (UnreadCount) EventType() string          { return EventUnreadCount }
func (RoomJoined) EventType() string           { return EventRoomJoined }
func (RoomLeft) EventType() string             { return EventRoomLeft }
func (ErrorEvent) EventType() string           { return EventError }

func EncodeOutbound(event OutboundEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}
	frame, err := json.Marshal(envelope{Type: event.EventType(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return frame, nil
}
