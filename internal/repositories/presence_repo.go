package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/trackerlive/internal/models"
)

type PostgresPresenceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPresenceRepository(pool *pgxpool.Pool) *PostgresPresenceRepository {
	return &PostgresPresenceRepository{pool: pool}
}

func (r *PostgresPresenceRepository) Upsert(ctx context.Context, presence *models.Presence) error {
	if !presence.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPresence, presence.Status)
	}

	query := `INSERT INTO presence (user_id, status, current_page, current_issue_id, last_seen, connection_hint)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (user_id) DO UPDATE
	          SET status = EXCLUDED.status,
	              current_page = EXCLUDED.current_page,
	              current_issue_id = EXCLUDED.current_issue_id,
	              last_seen = EXCLUDED.last_seen,
	              connection_hint = EXCLUDED.connection_hint
	          WHERE presence.last_seen <= EXCLUDED.last_seen`

	_, err := r.pool.Exec(ctx, query,
		presence.UserID,
		string(presence.Status),
		presence.CurrentPage,
		presence.CurrentIssueID,
		presence.LastSeen,
		presence.ConnectionHint,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

func (r *PostgresPresenceRepository) Get(ctx context.Context, userID string) (*models.Presence, error) {
	query := `SELECT user_id, status, current_page, current_issue_id, last_seen, connection_hint
	          FROM presence
	          WHERE user_id = $1`

	var (
		presence models.Presence
		status   string
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&presence.UserID,
		&status,
		&presence.CurrentPage,
		&presence.CurrentIssueID,
		&presence.LastSeen,
		&presence.ConnectionHint,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	presence.Status = models.PresenceStatus(status)
	if !presence.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPresence, status)
	}
	return &presence, nil
}
