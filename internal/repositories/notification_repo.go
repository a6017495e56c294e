package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/trackerlive/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, read, read_at, snoozed_until,
	                 issue_id, issue_key, project_id, action_url, actor_id, actor_name, created_at`

type PostgresNotificationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresNotificationRepository(pool *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

func (r *PostgresNotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, type, title, message, issue_id, issue_key,
	                                     project_id, action_url, actor_id, actor_name)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id, read, created_at`

	err := r.pool.QueryRow(ctx, query,
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
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
	          FROM notifications
	          WHERE id = $1`

	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	// read only ever goes to TRUE; read_at keeps the first read time.
	query := `UPDATE notifications
	          SET read = TRUE, read_at = COALESCE(read_at, NOW())
	          WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE notifications
	          SET read = TRUE, read_at = NOW()
	          WHERE user_id = $1 AND read = FALSE`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *PostgresNotificationRepository) Snooze(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `UPDATE notifications SET snoozed_until = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, until, id)
	if err != nil {
		return fmt.Errorf("failed to snooze notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`

	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *PostgresNotificationRepository) Find(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}

	if filter.UnreadOnly {
		conditions = append(conditions, "read = FALSE")
	}
	if !filter.IncludeSnoozed {
		args = append(args, filterNow(filter))
		conditions = append(conditions, fmt.Sprintf("(snoozed_until IS NULL OR snoozed_until <= $%d)", len(args)))
	}

	query := `SELECT ` + notificationColumns + `
	          FROM notifications
	          WHERE ` + strings.Join(conditions, " AND ") + `
	          ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var (
		n     models.Notification
		ntype string
	)
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&ntype,
		&n.Title,
		&n.Message,
		&n.Read,
		&n.ReadAt,
		&n.SnoozedUntil,
		&n.IssueID,
		&n.IssueKey,
		&n.ProjectID,
		&n.ActionURL,
		&n.ActorID,
		&n.ActorName,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(ntype)
	return &n, nil
}

func filterNow(filter models.NotificationFilter) time.Time {
	if filter.Now.IsZero() {
		return time.Now()
	}
	return filter.Now
}
