// Package ratelimit 基于 Redis 的固定窗口限流，多实例共享计数。
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewLimiter(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Allow 计数 +1 并判断是否超限。INCR 与 EXPIRE 在同一事务里提交，计数键不会丢失过期时间
func (l *Limiter) Allow(ctx context.Context, id string) (Result, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	key := fmt.Sprintf("%s%s:%d", l.prefix, id, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, resetAt.Sub(now))
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	count := incr.Val()

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   int(count) <= l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
