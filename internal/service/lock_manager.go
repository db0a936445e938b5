package service

import (
	"context"
	"fmt"
	"time"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
)

// LockStore 分析锁的共享存储（数据库表或 Redis）
type LockStore interface {
	// TryCreate 原子创建，已存在返回 false
	TryCreate(ctx context.Context, lock *model.AnalysisLock) (bool, error)
	// DeleteStale 仅删除早于 cutoff 的锁，锁已不存在也返回 true
	DeleteStale(ctx context.Context, ownerID int64, cutoff time.Time) (bool, error)
	Delete(ctx context.Context, ownerID int64) error
}

// LockManager 每个用户同一时间只允许一个分析在执行，超过过期窗口的锁视为遗弃并可回收
type LockManager struct {
	store  LockStore
	window time.Duration
	log    logger.Logger
	now    func() time.Time
}

func NewLockManager(store LockStore, window time.Duration, log logger.Logger) *LockManager {
	if log == nil {
		log = logger.Nop()
	}
	return &LockManager{
		store:  store,
		window: window,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Acquire 获取锁，被占用且未过期时返回 ErrAnalysisInProgress
func (m *LockManager) Acquire(ctx context.Context, ownerID int64, repoURL string) error {
	now := m.now()

	created, err := m.store.TryCreate(ctx, m.newLock(ownerID, repoURL, now))
	if err != nil {
		return fmt.Errorf("acquire analysis lock: %w", err)
	}
	if created {
		return nil
	}

	reclaimed, err := m.store.DeleteStale(ctx, ownerID, now.Add(-m.window))
	if err != nil {
		return fmt.Errorf("reclaim analysis lock: %w", err)
	}
	if !reclaimed {
		return apperr.ErrAnalysisInProgress
	}
	m.log.Warn(ctx, "reclaimed stale analysis lock", "owner_id", ownerID, "window", m.window.String())

	// 回收后仍可能被并发请求抢先
	created, err = m.store.TryCreate(ctx, m.newLock(ownerID, repoURL, now))
	if err != nil {
		return fmt.Errorf("acquire analysis lock: %w", err)
	}
	if !created {
		return apperr.ErrAnalysisInProgress
	}
	return nil
}

// Release 无条件删除
func (m *LockManager) Release(ctx context.Context, ownerID int64) error {
	return m.store.Delete(ctx, ownerID)
}

// WithLock 持锁执行 fn，任何退出路径（包括 panic 和 ctx 取消）都会释放锁
func (m *LockManager) WithLock(ctx context.Context, ownerID int64, repoURL string, fn func(ctx context.Context) error) error {
	if err := m.Acquire(ctx, ownerID, repoURL); err != nil {
		return err
	}
	defer func() {
		if err := m.Release(context.WithoutCancel(ctx), ownerID); err != nil {
			m.log.Error(ctx, "release analysis lock failed", "owner_id", ownerID, "error", err)
		}
	}()

	return fn(ctx)
}

func (m *LockManager) newLock(ownerID int64, repoURL string, now time.Time) *model.AnalysisLock {
	return &model.AnalysisLock{
		OwnerID:   ownerID,
		RepoURL:   repoURL,
		Status:    model.LockStatusLocked,
		CreatedAt: now,
	}
}
