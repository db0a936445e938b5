package model

import (
	"time"
)

const LockStatusLocked = "locked"

// AnalysisLock 每个用户同一时间至多一把分析锁
type AnalysisLock struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OwnerID   int64     `gorm:"uniqueIndex;not null" json:"owner_id"`
	RepoURL   string    `gorm:"size:255;not null" json:"repo_url"`
	Status    string    `gorm:"size:20;default:locked" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AnalysisLock) TableName() string {
	return "analysis_locks"
}
