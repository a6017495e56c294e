package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/trackerlive/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPresence = errors.New("invalid presence status")
)

type PresenceRepository interface {
	// Upsert writes the row for presence.UserID. A snapshot older than the stored
	// last_seen is ignored so last_seen never moves backwards.
	Upsert(ctx context.Context, presence *models.Presence) error
	Get(ctx context.Context, userID string) (*models.Presence, error)
}

type NotificationRepository interface {
	// Insert assigns ID and CreatedAt.
	Insert(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	// MarkRead is idempotent; it returns ErrNotFound only for an unknown id.
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Snooze(ctx context.Context, id uuid.UUID, until time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID string) (int64, error)
	Find(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error)
}
