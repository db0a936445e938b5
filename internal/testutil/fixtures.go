package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
)

var seq int64 = 1000

func nextID() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	id := nextID()
	user := &model.User{
		ID:       id,
		Username: fmt.Sprintf("testuser_%d", id),
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// TestCaseStudy 创建测试案例
func TestCaseStudy(t *testing.T, db *gorm.DB, ownerID int64, opts ...func(*model.CaseStudy)) *model.CaseStudy {
	t.Helper()

	id := nextID()
	cs := &model.CaseStudy{
		RepoURL:      fmt.Sprintf("https://github.com/acme/repo-%d", id),
		Slug:         fmt.Sprintf("repo-%d", id),
		Title:        fmt.Sprintf("Repo %d", id),
		Summary:      "A test project.",
		TechStack:    "Go",
		CoreFeatures: datatypes.JSON(`[]`),
		ProofData:    datatypes.JSON(`{}`),
		KeyFolders:   model.StringArray{"cmd", "internal"},
		TotalCommits: 10,
		ActivePeriod: "Jan 2024 - Jun 2024",
		OwnerID:      ownerID,
	}

	for _, opt := range opts {
		opt(cs)
	}

	if err := db.Create(cs).Error; err != nil {
		t.Fatalf("Failed to create test case study: %v", err)
	}

	return cs
}

// WithRepoURL 设置仓库地址
func WithRepoURL(url string) func(*model.CaseStudy) {
	return func(cs *model.CaseStudy) {
		cs.RepoURL = url
	}
}

// WithSlug 设置 slug
func WithSlug(slug string) func(*model.CaseStudy) {
	return func(cs *model.CaseStudy) {
		cs.Slug = slug
	}
}

// TestRepoContext 创建测试仓库上下文
func TestRepoContext(t *testing.T, db *gorm.DB, repoURL string) *model.RepoContext {
	t.Helper()

	rc := &model.RepoContext{
		RepoURL:       repoURL,
		OwnerLogin:    "acme",
		RepoName:      "widget",
		StarCount:     42,
		DefaultBranch: "main",
		ContextText:   "Repository: acme/widget (3 files in tree)",
		Metrics:       datatypes.JSON(`{"total_commits":10}`),
	}

	if err := db.Create(rc).Error; err != nil {
		t.Fatalf("Failed to create test repo context: %v", err)
	}

	return rc
}

// TestPayment 创建测试支付记录
func TestPayment(t *testing.T, db *gorm.DB, userID, caseStudyID int64, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	p := &model.Payment{
		UserID:      userID,
		CaseStudyID: caseStudyID,
		Currency:    "USD",
		Status:      model.PaymentStatusPending,
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return p
}

// WithOrderID 设置外部订单号
func WithOrderID(orderID string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.ExternalOrderID = &orderID
	}
}

// WithPaymentStatus 设置支付状态
func WithPaymentStatus(status string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Status = status
	}
}

// WithPaymentCreatedAt 设置创建时间
func WithPaymentCreatedAt(at time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.CreatedAt = at
		p.UpdatedAt = at
	}
}

func WithReportAttempts(n int) func(*model.Payment) {
	return func(p *model.Payment) {
		p.ReportAttempts = n
	}
}

// TestVCReport 创建测试报告
func TestVCReport(t *testing.T, db *gorm.DB, userID, caseStudyID int64) *model.VCReport {
	t.Helper()

	r := &model.VCReport{
		CaseStudyID:       caseStudyID,
		UserID:            userID,
		Scores:            datatypes.JSON(`{"problemClarity":{"score":6,"reason":"ok"}}`),
		NarrativeSections: datatypes.JSON(`{"problemAndUserPain":"text"}`),
		Verdict:           "Promising",
	}

	if err := db.Create(r).Error; err != nil {
		t.Fatalf("Failed to create test report: %v", err)
	}

	return r
}

// TestLock 直接写入一把分析锁
func TestLock(t *testing.T, db *gorm.DB, ownerID int64, createdAt time.Time) *model.AnalysisLock {
	t.Helper()

	lock := &model.AnalysisLock{
		OwnerID:   ownerID,
		RepoURL:   "https://github.com/acme/widget",
		Status:    model.LockStatusLocked,
		CreatedAt: createdAt.UTC(),
	}

	if err := db.Create(lock).Error; err != nil {
		t.Fatalf("Failed to create test lock: %v", err)
	}

	return lock
}
