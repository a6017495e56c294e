package models

import (
	"time"
)

type Presence struct {
	UserID         string         `json:"user_id"`
	Status         PresenceStatus `json:"status"`
	CurrentPage    *string        `json:"current_page,omitempty"`
	CurrentIssueID *string        `json:"current_issue_id,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
	ConnectionHint string         `json:"connection_hint,omitempty"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway:
		return true
	}
	return false
}

// OfflinePresence is what callers see for a user the system has no record of.
func OfflinePresence(userID string) *Presence {
	return &Presence{
		UserID: userID,
		Status: StatusOffline,
	}
}
