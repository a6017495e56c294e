package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/trackerlive/internal/metrics"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/repositories"
)

var (
	ErrInvalidNotification = errors.New("invalid notification")
	ErrInvalidSnooze       = errors.New("snooze minutes must be positive")
)

const maxFeedLimit = 100

// Publisher is the part of the realtime hub the pipeline delivers through.
type Publisher interface {
	IsLive(userID string) bool
	PublishToUser(userID string, event models.OutboundEvent) int
}

type NotificationService struct {
	repo      repositories.NotificationRepository
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewNotificationService(
	repo repositories.NotificationRepository,
	publisher Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Create persists a notification and then pushes it to the recipient's live
// connections. Nothing is published unless the insert succeeded.
func (s *NotificationService) Create(ctx context.Context, data models.NotificationData) (*models.Notification, error) {
	data.UserID = strings.TrimSpace(data.UserID)
	if data.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	}
	if data.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidNotification)
	}

	notification := data.Notification()
	if err := s.repo.Insert(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.NotificationCreated()

	s.Deliver(ctx, notification)
	return notification, nil
}

// CreateMany creates one broadcast notification per distinct recipient. It
// keeps going past failures and returns the first one.
func (s *NotificationService) CreateMany(ctx context.Context, userIDs []string, data models.NotificationData) ([]*models.Notification, error) {
	if data.Type == "" {
		data.Type = models.NotificationBroadcast
	}

	seen := make(map[string]struct{}, len(userIDs))
	created := make([]*models.Notification, 0, len(userIDs))
	var firstErr error
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		data.UserID = userID
		notification, err := s.Create(ctx, data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, notification)
	}
	return created, firstErr
}

// Deliver publishes a persisted notification with the recipient's unread
// count. Offline recipients are skipped; they see it on their next query.
func (s *NotificationService) Deliver(ctx context.Context, notification *models.Notification) {
	if !s.publisher.IsLive(notification.UserID) {
		return
	}

	count, err := s.repo.CountUnread(ctx, notification.UserID)
	if err != nil {
		s.logger.Error("unread_count_failed", "user_id", notification.UserID, "error", err)
		return
	}

	delivered := s.publisher.PublishToUser(notification.UserID, models.NotificationDelivery{
		Notification: notification,
		UnreadCount:  count,
	})
	if delivered > 0 {
		s.metrics.NotificationDelivered()
	}
}

// Get returns the notification if it belongs to userID.
func (s *NotificationService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	return notification, nil
}

// MarkRead is idempotent; marking a read notification again changes nothing.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	notification, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if notification.Read {
		return nil
	}

	if err := s.repo.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	s.pushUnreadCount(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	if updated > 0 {
		s.pushUnreadCount(ctx, userID)
	}
	return updated, nil
}

// Snooze hides the notification from the active feed for minutes. It still
// counts as unread.
func (s *NotificationService) Snooze(ctx context.Context, userID string, id uuid.UUID, minutes int) (time.Time, error) {
	if minutes <= 0 {
		return time.Time{}, ErrInvalidSnooze
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return time.Time{}, err
	}

	until := s.now().Add(time.Duration(minutes) * time.Minute)
	if err := s.repo.Snooze(ctx, id, until); err != nil {
		return time.Time{}, fmt.Errorf("failed to snooze notification: %w", err)
	}
	return until, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	notification, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if !notification.Read {
		s.pushUnreadCount(ctx, userID)
	}
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// List returns the user's feed, newest first. Snoozed notifications are left
// out unless filter.IncludeSnoozed is set.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	}
	filter.Now = s.now()
	if filter.Limit <= 0 || filter.Limit > maxFeedLimit {
		filter.Limit = maxFeedLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	notifications, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, userID string) {
	if !s.publisher.IsLive(userID) {
		return
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("unread_count_failed", "user_id", userID, "error", err)
		return
	}
	s.publisher.PublishToUser(userID, models.UnreadCount{Count: count})
}
