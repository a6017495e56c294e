package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/trackerlive/internal/database"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher stands in for the hub and records everything published.
type recordingPublisher struct {
	mu        sync.Mutex
	live      map[string]bool
	published map[string][]models.OutboundEvent
}

func newRecordingPublisher(liveUsers ...string) *recordingPublisher {
	p := &recordingPublisher{live: make(map[string]bool), published: make(map[string][]models.OutboundEvent)}
	for _, u := range liveUsers {
		p.live[u] = true
	}
	return p
}

func (p *recordingPublisher) IsLive(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live[userID]
}

func (p *recordingPublisher) PublishToUser(userID string, event models.OutboundEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[userID] = append(p.published[userID], event)
	return 1
}

func (p *recordingPublisher) events(userID string) []models.OutboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OutboundEvent(nil), p.published[userID]...)
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, events := range p.published {
		n += len(events)
	}
	return n
}

// failingInsertRepo fails every insert.
type failingInsertRepo struct {
	repositories.NotificationRepository
}

func (failingInsertRepo) Insert(context.Context, *models.Notification) error {
	return errors.New("connection refused")
}

func setupNotificationService(t *testing.T, liveUsers ...string) (*NotificationService, *recordingPublisher) {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	publisher := newRecordingPublisher(liveUsers...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotificationService(repositories.NewSQLiteNotificationRepository(db), publisher, logger, nil), publisher
}

func mention(userID string) models.NotificationData {
	return models.NotificationData{UserID: userID, Type: models.NotificationMention, Title: "X", Message: "Y"}
}

// TestNotificationService_Scenario tests create, delivery to the inbox and mark-read end to end
func TestNotificationService_Scenario(t *testing.T) {
	svc, publisher := setupNotificationService(t, "u1")
	ctx := context.Background()

	// ACT
	notification, err := svc.Create(ctx, mention("u1"))

	// ASSERT: durable and delivered with the count
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, notification.ID)
	count, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	events := publisher.events("u1")
	require.Len(t, events, 1)
	delivery, ok := events[0].(models.NotificationDelivery)
	require.True(t, ok)
	assert.Equal(t, notification.ID, delivery.Notification.ID)
	assert.Equal(t, int64(1), delivery.UnreadCount)

	// ACT: read it
	require.NoError(t, svc.MarkRead(ctx, "u1", notification.ID))

	count, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, models.OutboundEvent(models.UnreadCount{Count: 0}), publisher.events("u1")[1])
}

// TestNotificationService_PersistBeforeDeliver tests that a failed insert publishes nothing
func TestNotificationService_PersistBeforeDeliver(t *testing.T) {
	publisher := newRecordingPublisher("u1")
	svc := NewNotificationService(failingInsertRepo{}, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	notification, err := svc.Create(context.Background(), mention("u1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create notification")
	assert.Nil(t, notification)
	assert.Equal(t, 0, publisher.total())
}

func TestNotificationService_CreateRequiresRecipient(t *testing.T) {
	svc, publisher := setupNotificationService(t)

	_, err := svc.Create(context.Background(), models.NotificationData{UserID: "  ", Type: models.NotificationMention})

	assert.ErrorIs(t, err, ErrInvalidNotification)
	assert.Equal(t, 0, publisher.total())
}

// TestNotificationService_OfflineRecipient tests that delivery is skipped but the row is kept
func TestNotificationService_OfflineRecipient(t *testing.T) {
	svc, publisher := setupNotificationService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, mention("u2"))

	require.NoError(t, err)
	assert.Equal(t, 0, publisher.total())
	feed, err := svc.List(ctx, models.NotificationFilter{UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

// TestNotificationService_MarkReadIdempotent tests that a second mark-read is a no-op
func TestNotificationService_MarkReadIdempotent(t *testing.T) {
	svc, publisher := setupNotificationService(t, "u1")
	ctx := context.Background()
	first, err := svc.Create(ctx, mention("u1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, mention("u1"))
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "u1", first.ID))
	count, _ := svc.UnreadCount(ctx, "u1")
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.MarkRead(ctx, "u1", first.ID))
	count, _ = svc.UnreadCount(ctx, "u1")
	assert.Equal(t, int64(1), count)

	read, err := svc.Get(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)
	assert.NotNil(t, read.ReadAt)
	assert.Len(t, publisher.events("u1"), 3, "two deliveries and one unread-count push")
}

func TestNotificationService_OwnershipIsEnforced(t *testing.T) {
	svc, _ := setupNotificationService(t)
	ctx := context.Background()
	notification, err := svc.Create(ctx, mention("u1"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, "intruder", notification.ID), repositories.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "intruder", notification.ID), repositories.ErrNotFound)
	_, err = svc.Snooze(ctx, "intruder", notification.ID, 10)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, "u1", uuid.New()), repositories.ErrNotFound)
}

// TestNotificationService_SnoozeHidesFromFeedNotCounter tests the feed/counter split
func TestNotificationService_SnoozeHidesFromFeedNotCounter(t *testing.T) {
	svc, _ := setupNotificationService(t)
	ctx := context.Background()
	now := time.Now()
	svc.now = func() time.Time { return now }

	snoozed, err := svc.Create(ctx, mention("u1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, mention("u1"))
	require.NoError(t, err)

	// ACT
	until, err := svc.Snooze(ctx, "u1", snoozed.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), until)

	// ASSERT: counter unchanged
	count, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// ASSERT: feed hides it
	feed, err := svc.List(ctx, models.NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.NotEqual(t, snoozed.ID, feed[0].ID)

	all, err := svc.List(ctx, models.NotificationFilter{UserID: "u1", IncludeSnoozed: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// ACT: the snooze elapses
	now = now.Add(61 * time.Minute)
	feed, err = svc.List(ctx, models.NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, feed, 2)
}

func TestNotificationService_SnoozeRejectsNonPositive(t *testing.T) {
	svc, _ := setupNotificationService(t)

	_, err := svc.Snooze(context.Background(), "u1", uuid.New(), 0)

	assert.ErrorIs(t, err, ErrInvalidSnooze)
}

func TestNotificationService_MarkAllReadPushesCount(t *testing.T) {
	svc, publisher := setupNotificationService(t, "u1")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, mention("u1"))
		require.NoError(t, err)
	}

	updated, err := svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	events := publisher.events("u1")
	assert.Equal(t, models.OutboundEvent(models.UnreadCount{Count: 0}), events[len(events)-1])

	// Nothing left to mark, nothing pushed
	updated, err = svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
	assert.Len(t, publisher.events("u1"), len(events))
}

func TestNotificationService_DeleteUnread(t *testing.T) {
	svc, publisher := setupNotificationService(t, "u1")
	ctx := context.Background()
	notification, err := svc.Create(ctx, mention("u1"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", notification.ID))

	_, err = svc.Get(ctx, "u1", notification.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	events := publisher.events("u1")
	assert.Equal(t, models.OutboundEvent(models.UnreadCount{Count: 0}), events[len(events)-1])
}

func TestNotificationService_CreateManyDedupes(t *testing.T) {
	svc, publisher := setupNotificationService(t, "u1", "u2")
	ctx := context.Background()

	created, err := svc.CreateMany(ctx, []string{"u1", "u2", "u1", "u3"}, models.NotificationData{
		Title:   "Maintenance",
		Message: "Read-only mode at 22:00",
	})

	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, n := range created {
		assert.Equal(t, models.NotificationBroadcast, n.Type)
	}
	assert.Len(t, publisher.events("u1"), 1)
	assert.Len(t, publisher.events("u2"), 1)
	assert.Empty(t, publisher.events("u3"), "u3 is offline")
}

func TestNotificationService_CreateManyReturnsFirstError(t *testing.T) {
	svc, _ := setupNotificationService(t)

	created, err := svc.CreateMany(context.Background(), []string{"u1", "", "u2"}, models.NotificationData{Title: "T"})

	assert.ErrorIs(t, err, ErrInvalidNotification)
	assert.Len(t, created, 2)
}
