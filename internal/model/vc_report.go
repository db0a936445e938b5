package model

import (
	"time"

	"gorm.io/datatypes"
)

// VCReport 每个案例至多一份，case_study_id 唯一约束是生成幂等的边界
type VCReport struct {
	ID                int64          `gorm:"primaryKey" json:"id"`
	CaseStudyID       int64          `gorm:"uniqueIndex;not null" json:"case_study_id"`
	UserID            int64          `gorm:"not null;index" json:"user_id"`
	Scores            datatypes.JSON `gorm:"not null" json:"scores"`
	NarrativeSections datatypes.JSON `gorm:"not null" json:"narrative_sections"`
	Verdict           string         `gorm:"type:text" json:"verdict"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (VCReport) TableName() string {
	return "vc_reports"
}
