package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = StringArray{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported StringArray source %T", value)
	}
}

type CaseStudy struct {
	ID                     int64          `gorm:"primaryKey" json:"id"`
	RepoURL                string         `gorm:"size:255;uniqueIndex;not null" json:"repo_url"`
	Slug                   string         `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title                  string         `gorm:"size:200;not null" json:"title"`
	Summary                string         `gorm:"type:text" json:"summary"`
	ProblemSummary         string         `gorm:"type:text" json:"problem_summary"`
	SolutionSummary        string         `gorm:"type:text" json:"solution_summary"`
	TechStack              string         `gorm:"type:text" json:"tech_stack"`
	ArchitectureOverview   string         `gorm:"type:text" json:"architecture_overview"`
	CoreFeatures           datatypes.JSON `gorm:"not null" json:"core_features"`
	ChallengesAndSolutions string         `gorm:"type:text" json:"challenges_and_solutions"`
	Impact                 string         `gorm:"type:text" json:"impact"`
	ProofData              datatypes.JSON `gorm:"not null" json:"proof_data"`
	KeyFolders             StringArray    `gorm:"type:json" json:"key_folders"`
	TotalCommits           int            `gorm:"default:0" json:"total_commits"`
	ActivePeriod           string         `gorm:"size:100" json:"active_period"`
	OwnerID                int64          `gorm:"not null;index" json:"owner_id"`
	CreatedAt              time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`

	// 关联
	Owner *User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
}

func (CaseStudy) TableName() string {
	return "case_studies"
}
