package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/devhance_server/internal/model"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestStore_TryCreate(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewStore(client, 10*time.Minute)
	ctx := context.Background()

	lock := &model.AnalysisLock{OwnerID: 1, RepoURL: "https://github.com/acme/widget", CreatedAt: time.Now()}

	ok, err := store.TryCreate(ctx, lock)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Minute, mr.TTL("analysis_lock:1"))

	ok, err = store.TryCreate(ctx, lock)
	require.NoError(t, err)
	assert.False(t, ok)

	other := &model.AnalysisLock{OwnerID: 2, RepoURL: "https://github.com/acme/widget", CreatedAt: time.Now()}
	ok, err = store.TryCreate(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per owner")
}

func TestStore_DeleteStale(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, 10*time.Minute)
	ctx := context.Background()
	now := time.Now()

	t.Run("fresh lock is kept", func(t *testing.T) {
		_, err := store.TryCreate(ctx, &model.AnalysisLock{OwnerID: 1, CreatedAt: now})
		require.NoError(t, err)

		deleted, err := store.DeleteStale(ctx, 1, now.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, int64(1), client.Exists(ctx, "analysis_lock:1").Val())
	})

	t.Run("old lock is removed", func(t *testing.T) {
		_, err := store.TryCreate(ctx, &model.AnalysisLock{OwnerID: 2, CreatedAt: now.Add(-11 * time.Minute)})
		require.NoError(t, err)

		deleted, err := store.DeleteStale(ctx, 2, now.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, int64(0), client.Exists(ctx, "analysis_lock:2").Val())
	})

	t.Run("missing lock", func(t *testing.T) {
		deleted, err := store.DeleteStale(ctx, 3, now)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("garbage value is treated as stale", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "analysis_lock:4", "not-json", 0).Err())

		deleted, err := store.DeleteStale(ctx, 4, now)
		require.NoError(t, err)
		assert.True(t, deleted)
	})
}

func TestStore_Delete(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	_, err := store.TryCreate(ctx, &model.AnalysisLock{OwnerID: 9, CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, 9))
	require.NoError(t, store.Delete(ctx, 9))

	ok, err := store.TryCreate(ctx, &model.AnalysisLock{OwnerID: 9, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)
}
