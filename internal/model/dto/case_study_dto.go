package dto

import "encoding/json"

// CreateCaseStudyRequest 提交仓库生成案例
type CreateCaseStudyRequest struct {
	RepoURL string `json:"repo_url" binding:"required,max=300"`
}

// CreateCaseStudyResponse 创建结果，degraded 表示部分上游数据使用了降级值
type CreateCaseStudyResponse struct {
	ID       int64  `json:"id"`
	Slug     string `json:"slug"`
	Degraded bool   `json:"degraded"`
}

// CaseStudyDetail 案例详情（公开）
type CaseStudyDetail struct {
	ID                     int64           `json:"id"`
	Slug                   string          `json:"slug"`
	RepoURL                string          `json:"repo_url"`
	Title                  string          `json:"title"`
	Summary                string          `json:"summary"`
	ProblemSummary         string          `json:"problem_summary"`
	SolutionSummary        string          `json:"solution_summary"`
	TechStack              string          `json:"tech_stack"`
	ArchitectureOverview   string          `json:"architecture_overview"`
	CoreFeatures           json.RawMessage `json:"core_features"`
	ChallengesAndSolutions string          `json:"challenges_and_solutions"`
	Impact                 string          `json:"impact"`
	ProofData              json.RawMessage `json:"proof_data"`
	KeyFolders             []string        `json:"key_folders"`
	TotalCommits           int             `json:"total_commits"`
	ActivePeriod           string          `json:"active_period"`
	OwnerID                int64           `json:"owner_id"`
	CreatedAt              string          `json:"created_at"`
}

// CaseStudyListItem 个人案例列表项
type CaseStudyListItem struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	RepoURL   string `json:"repo_url"`
	CreatedAt string `json:"created_at"`
}

// ListQuery 分页参数
type ListQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}
