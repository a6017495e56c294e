package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is open-ended; producers may use values beyond the ones below.
type NotificationType string

const (
	NotificationAssignment   NotificationType = "assignment"
	NotificationMention      NotificationType = "mention"
	NotificationStatusChange NotificationType = "status-change"
	NotificationComment      NotificationType = "comment"
	NotificationBroadcast    NotificationType = "broadcast"
	NotificationMemberAdded  NotificationType = "member-added"
)

type Notification struct {
	ID           uuid.UUID        `json:"id"`
	UserID       string           `json:"user_id"`
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	Read         bool             `json:"read"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
	SnoozedUntil *time.Time       `json:"snoozed_until,omitempty"`
	IssueID      *string          `json:"issue_id,omitempty"`
	IssueKey     *string          `json:"issue_key,omitempty"`
	ProjectID    *string          `json:"project_id,omitempty"`
	ActionURL    *string          `json:"action_url,omitempty"`
	ActorID      *string          `json:"actor_id,omitempty"`
	ActorName    *string          `json:"actor_name,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Snoozed reports whether the notification is hidden from the active feed at now.
func (n *Notification) Snoozed(now time.Time) bool {
	return n.SnoozedUntil != nil && now.Before(*n.SnoozedUntil)
}

// NotificationData is what producers hand to the pipeline.
type NotificationData struct {
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IssueID   *string          `json:"issue_id,omitempty"`
	IssueKey  *string          `json:"issue_key,omitempty"`
	ProjectID *string          `json:"project_id,omitempty"`
	ActionURL *string          `json:"action_url,omitempty"`
	ActorID   *string          `json:"actor_id,omitempty"`
	ActorName *string          `json:"actor_name,omitempty"`
}

func (d NotificationData) Notification() *Notification {
	return &Notification{
		UserID:    d.UserID,
		Type:      d.Type,
		Title:     d.Title,
		Message:   d.Message,
		IssueID:   d.IssueID,
		IssueKey:  d.IssueKey,
		ProjectID: d.ProjectID,
		ActionURL: d.ActionURL,
		ActorID:   d.ActorID,
		ActorName: d.ActorName,
	}
}

type NotificationFilter struct {
	UserID         string
	UnreadOnly     bool
	IncludeSnoozed bool
	// Now is the reference time for snooze exclusion.
	Now    time.Time
	Limit  int
	Offset int
}
