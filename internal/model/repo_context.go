package model

import (
	"time"

	"gorm.io/datatypes"
)

// RepoContext 按规范化仓库地址缓存的上下文，案例与报告生成共用
type RepoContext struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	RepoURL       string         `gorm:"size:255;uniqueIndex;not null" json:"repo_url"`
	OwnerLogin    string         `gorm:"size:100" json:"owner_login"`
	RepoName      string         `gorm:"size:100" json:"repo_name"`
	StarCount     int            `gorm:"default:0" json:"star_count"`
	DefaultBranch string         `gorm:"size:100" json:"default_branch"`
	ContextText   string         `gorm:"type:mediumtext" json:"context_text"`
	Metrics       datatypes.JSON `json:"metrics,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (RepoContext) TableName() string {
	return "repo_contexts"
}
