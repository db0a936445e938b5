package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
)

// LockRepository 基于 owner_id 唯一索引的分析锁存储
type LockRepository struct {
	db *gorm.DB
}

func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db}
}

// TryCreate 唯一索引冲突返回 false
func (r *LockRepository) TryCreate(ctx context.Context, lock *model.AnalysisLock) (bool, error) {
	err := r.db.WithContext(ctx).Create(lock).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteStale 条件删除早于 cutoff 的锁；锁已不存在同样返回 true
func (r *LockRepository) DeleteStale(ctx context.Context, ownerID int64, cutoff time.Time) (bool, error) {
	db := r.db.WithContext(ctx)

	result := db.Where("owner_id = ? AND created_at < ?", ownerID, cutoff).Delete(&model.AnalysisLock{})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := db.Model(&model.AnalysisLock{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *LockRepository) Delete(ctx context.Context, ownerID int64) error {
	return r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&model.AnalysisLock{}).Error
}

func (r *LockRepository) GetByOwner(ctx context.Context, ownerID int64) (*model.AnalysisLock, error) {
	var lock model.AnalysisLock
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&lock).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// DeleteAllStale 清理所有过期锁，返回删除数量
func (r *LockRepository) DeleteAllStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AnalysisLock{})
	return result.RowsAffected, result.Error
}
