package repositories

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCachedPresenceRepository_WriteThrough tests that writes land in both tiers
func TestCachedPresenceRepository_WriteThrough(t *testing.T) {
	client := getTestRedisClient(t)
	store := NewSQLitePresenceRepository(getTestSQLite(t))
	repo := NewCachedPresenceRepository(store, client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	defer client.Del(ctx, presenceKey("cache-u1"))

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, repo.Upsert(ctx, &models.Presence{UserID: "cache-u1", Status: models.StatusOnline, LastSeen: now}))

	ttl, err := client.TTL(ctx, presenceKey("cache-u1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "cached presence should expire")

	durable, err := store.Get(ctx, "cache-u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, durable.Status)
}

// TestCachedPresenceRepository_ReadFallback tests a cache miss served by the durable store
func TestCachedPresenceRepository_ReadFallback(t *testing.T) {
	client := getTestRedisClient(t)
	store := NewSQLitePresenceRepository(getTestSQLite(t))
	repo := NewCachedPresenceRepository(store, client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	defer client.Del(ctx, presenceKey("cache-u2"))

	require.NoError(t, store.Upsert(ctx, &models.Presence{UserID: "cache-u2", Status: models.StatusAway, LastSeen: time.Now()}))
	client.Del(ctx, presenceKey("cache-u2"))

	presence, err := repo.Get(ctx, "cache-u2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, presence.Status)

	exists, err := client.Exists(ctx, presenceKey("cache-u2")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "miss should repopulate the cache")

	_, err = repo.Get(ctx, "cache-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCachedPresenceRepository_KeepsNewerSnapshot tests that a late, older write
// leaves both tiers on the newer snapshot
func TestCachedPresenceRepository_KeepsNewerSnapshot(t *testing.T) {
	client := getTestRedisClient(t)
	store := NewSQLitePresenceRepository(getTestSQLite(t))
	repo := NewCachedPresenceRepository(store, client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	defer client.Del(ctx, presenceKey("cache-u3"))

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, repo.Upsert(ctx, &models.Presence{UserID: "cache-u3", Status: models.StatusOffline, LastSeen: now}))

	// ACT: an older snapshot arrives late
	require.NoError(t, repo.Upsert(ctx, &models.Presence{UserID: "cache-u3", Status: models.StatusOnline, LastSeen: now.Add(-time.Minute)}))

	// ASSERT
	presence, err := repo.Get(ctx, "cache-u3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, presence.Status)
	durable, err := store.Get(ctx, "cache-u3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, durable.Status)
}

// getTestRedisClient returns a Redis client for TEST_REDIS_URL
func getTestRedisClient(t *testing.T) *redis.Client {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)

	err = client.Ping(context.Background()).Err()
	require.NoError(t, err, "Failed to connect to test Redis")
	t.Cleanup(func() { client.Close() })
	return client
}
