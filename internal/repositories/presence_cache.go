package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix  = "presence:"
	DefaultPresenceTTL = 10 * time.Minute
)

// CachedPresenceRepository fronts a durable PresenceRepository with Redis.
// Writes go to the durable store first and then refresh the cached copy
// unless it already holds a newer snapshot; reads try Redis and fall back to
// the durable store. Cache failures are logged and never fail the call.
type CachedPresenceRepository struct {
	store  PresenceRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedPresenceRepository(store PresenceRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedPresenceRepository {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &CachedPresenceRepository{store: store, client: client, ttl: ttl, logger: logger}
}

func (r *CachedPresenceRepository) Upsert(ctx context.Context, presence *models.Presence) error {
	if err := r.store.Upsert(ctx, presence); err != nil {
		return err
	}

	// The store ignores snapshots older than its row; the cache must too.
	if cached, ok := r.cached(ctx, presence.UserID); ok && cached.LastSeen.After(presence.LastSeen) {
		return nil
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	r.set(ctx, presence.UserID, data)
	return nil
}

func (r *CachedPresenceRepository) Get(ctx context.Context, userID string) (*models.Presence, error) {
	if presence, ok := r.cached(ctx, userID); ok {
		return presence, nil
	}

	presence, err := r.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(presence); err == nil {
		r.set(ctx, userID, data)
	}
	return presence, nil
}

func (r *CachedPresenceRepository) cached(ctx context.Context, userID string) (*models.Presence, bool) {
	data, err := r.client.Get(ctx, presenceKey(userID)).Result()
	switch {
	case err == nil:
		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err == nil {
			return &presence, true
		}
		r.logger.Warn("presence_cache_corrupt", "user_id", userID)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("presence_cache_get_failed", "user_id", userID, "error", err)
	}
	return nil, false
}

func (r *CachedPresenceRepository) set(ctx context.Context, userID string, data []byte) {
	if err := r.client.Set(ctx, presenceKey(userID), data, r.ttl).Err(); err != nil {
		r.logger.Warn("presence_cache_set_failed", "user_id", userID, "error", err)
	}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}
