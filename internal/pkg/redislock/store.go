// Package redislock 基于 Redis 的分析锁存储，多进程共享同一份锁状态。
package redislock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/devhance_server/internal/model"
)

const keyPrefix = "analysis_lock:"

type lockValue struct {
	RepoURL   string    `json:"repo_url"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore ttl 取过期窗口，持有者崩溃时 key 自行过期
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(ownerID int64) string {
	return keyPrefix + strconv.FormatInt(ownerID, 10)
}

// TryCreate SET NX，已存在返回 false
func (s *Store) TryCreate(ctx context.Context, lock *model.AnalysisLock) (bool, error) {
	data, err := json.Marshal(lockValue{RepoURL: lock.RepoURL, CreatedAt: lock.CreatedAt})
	if err != nil {
		return false, err
	}

	ok, err := s.rdb.SetNX(ctx, key(lock.OwnerID), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set lock: %w", err)
	}
	return ok, nil
}

// DeleteStale 仅当锁早于 cutoff 时删除；锁已不存在也返回 true
func (s *Store) DeleteStale(ctx context.Context, ownerID int64, cutoff time.Time) (bool, error) {
	k := key(ownerID)
	deleted := false

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			deleted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get lock: %w", err)
		}

		var v lockValue
		if err := json.Unmarshal(raw, &v); err == nil && !v.CreatedAt.Before(cutoff) {
			return nil
		}

		// 解析失败的值视为过期
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Delete 无条件删除
func (s *Store) Delete(ctx context.Context, ownerID int64) error {
	return s.rdb.Del(ctx, key(ownerID)).Err()
}
