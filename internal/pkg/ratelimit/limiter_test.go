package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewLimiter(client, limit, time.Minute), mr
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	fixed := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), res.ResetAt)

	res, err = limiter.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "counters are per client")
}

func TestLimiter_NewWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	now := time.Date(2026, 1, 1, 12, 0, 59, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	now = now.Add(2 * time.Second)
	res, err = limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())
}

func TestLimiter_CounterAlwaysExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t, 5)
	now := time.Date(2026, 1, 1, 12, 0, 20, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, 40*time.Second, mr.TTL(keys[0]), "expires at the end of the window")

	now = now.Add(10 * time.Second)
	res, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 30*time.Second, mr.TTL(keys[0]))
}
