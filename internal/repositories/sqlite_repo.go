package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prudhvinik1/trackerlive/internal/models"
)

// SQLite rows keep timestamps as unix milliseconds.

type SQLitePresenceRepository struct {
	db *sqlx.DB
}

func NewSQLitePresenceRepository(db *sqlx.DB) *SQLitePresenceRepository {
	return &SQLitePresenceRepository{db: db}
}

type presenceRow struct {
	UserID         string  `db:"user_id"`
	Status         string  `db:"status"`
	CurrentPage    *string `db:"current_page"`
	CurrentIssueID *string `db:"current_issue_id"`
	LastSeen       int64   `db:"last_seen"`
	ConnectionHint string  `db:"connection_hint"`
}

func (r *SQLitePresenceRepository) Upsert(ctx context.Context, presence *models.Presence) error {
	if !presence.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPresence, presence.Status)
	}

	query := `INSERT INTO presence (user_id, status, current_page, current_issue_id, last_seen, connection_hint)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT(user_id) DO UPDATE
	          SET status = excluded.status,
	              current_page = excluded.current_page,
	              current_issue_id = excluded.current_issue_id,
	              last_seen = excluded.last_seen,
	              connection_hint = excluded.connection_hint
	          WHERE presence.last_seen <= excluded.last_seen`

	_, err := r.db.ExecContext(ctx, query,
		presence.UserID,
		string(presence.Status),
		presence.CurrentPage,
		presence.CurrentIssueID,
		presence.LastSeen.UnixMilli(),
		presence.ConnectionHint,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

func (r *SQLitePresenceRepository) Get(ctx context.Context, userID string) (*models.Presence, error) {
	var row presenceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, status, current_page, current_issue_id, last_seen, connection_hint
		 FROM presence WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	status := models.PresenceStatus(row.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPresence, row.Status)
	}

	return &models.Presence{
		UserID:         row.UserID,
		Status:         status,
		CurrentPage:    row.CurrentPage,
		CurrentIssueID: row.CurrentIssueID,
		LastSeen:       time.UnixMilli(row.LastSeen),
		ConnectionHint: row.ConnectionHint,
	}, nil
}

type SQLiteNotificationRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteNotificationRepository(db *sqlx.DB) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{db: db, now: time.Now}
}

type notificationRow struct {
	ID           uuid.UUID `db:"id"`
	UserID       string    `db:"user_id"`
	Type         string    `db:"type"`
	Title        string    `db:"title"`
	Message      string    `db:"message"`
	Read         bool      `db:"read"`
	ReadAt       *int64    `db:"read_at"`
	SnoozedUntil *int64    `db:"snoozed_until"`
	IssueID      *string   `db:"issue_id"`
	IssueKey     *string   `db:"issue_key"`
	ProjectID    *string   `db:"project_id"`
	ActionURL    *string   `db:"action_url"`
	ActorID      *string   `db:"actor_id"`
	ActorName    *string   `db:"actor_name"`
	CreatedAt    int64     `db:"created_at"`
}

func (row notificationRow) toModel() *models.Notification {
	return &models.Notification{
		ID:           row.ID,
		UserID:       row.UserID,
		Type:         models.NotificationType(row.Type),
		Title:        row.Title,
		Message:      row.Message,
		Read:         row.Read,
		ReadAt:       millisToTime(row.ReadAt),
		SnoozedUntil: millisToTime(row.SnoozedUntil),
		IssueID:      row.IssueID,
		IssueKey:     row.IssueKey,
		ProjectID:    row.ProjectID,
		ActionURL:    row.ActionURL,
		ActorID:      row.ActorID,
		ActorName:    row.ActorName,
		CreatedAt:    time.UnixMilli(row.CreatedAt),
	}
}

const sqliteNotificationColumns = `id, user_id, type, title, message, read, read_at, snoozed_until,
	issue_id, issue_key, project_id, action_url, actor_id, actor_name, created_at`

func (r *SQLiteNotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	id := uuid.New()
	createdAt := r.now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, issue_id, issue_key,
		                            project_id, action_url, actor_id, actor_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		n.UserID,
		string(n.Type),
		n.Title,
		n.Message,
		n.IssueID,
		n.IssueKey,
		n.ProjectID,
		n.ActionURL,
		n.ActorID,
		n.ActorName,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	n.ID = id
	n.Read = false
	n.CreatedAt = time.UnixMilli(createdAt.UnixMilli())
	return nil
}

func (r *SQLiteNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+sqliteNotificationColumns+` FROM notifications WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return row.toModel(), nil
}

func (r *SQLiteNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`,
		r.now().UnixMilli(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = ? WHERE user_id = ? AND read = 0`,
		r.now().UnixMilli(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (r *SQLiteNotificationRepository) Snooze(ctx context.Context, id uuid.UUID, until time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET snoozed_until = ? WHERE id = ?`, until.UnixMilli(), id.String())
	if err != nil {
		return fmt.Errorf("failed to snooze notification: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteNotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *SQLiteNotificationRepository) Find(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if filter.UnreadOnly {
		conditions = append(conditions, "read = 0")
	}
	if !filter.IncludeSnoozed {
		conditions = append(conditions, "(snoozed_until IS NULL OR snoozed_until <= ?)")
		args = append(args, filterNow(filter).UnixMilli())
	}

	query := `SELECT ` + sqliteNotificationColumns + ` FROM notifications WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}

	notifications := make([]*models.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, row.toModel())
	}
	return notifications, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func millisToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
