package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/repourl"
	"github.com/qs3c/devhance_server/internal/repository"
)

// CaseStudyWriter 负责案例的去重与持久化
type CaseStudyWriter struct {
	repo *repository.CaseStudyRepository
	now  func() time.Time
}

func NewCaseStudyWriter(repo *repository.CaseStudyRepository) *CaseStudyWriter {
	return &CaseStudyWriter{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CheckDuplicate 仓库已有案例时返回 DuplicateRepoError
func (w *CaseStudyWriter) CheckDuplicate(ctx context.Context, repoURL string) error {
	existing, err := w.repo.GetByRepoURL(ctx, repoURL)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &apperr.DuplicateRepoError{RepoURL: repoURL, CaseStudyID: existing.ID, Slug: existing.Slug}
}

type WriteInput struct {
	OwnerID    int64
	Repo       repourl.Repo
	Content    *genai.CaseStudyContent
	Metadata   *RepoMetadata
	KeyFolders []string
}

// Write 生成 slug 并插入，缺失的字段填安全默认值
func (w *CaseStudyWriter) Write(ctx context.Context, in WriteInput) (*model.CaseStudy, error) {
	cs := buildCaseStudy(in, w.now())

	err := w.repo.CreateWithOwner(ctx, cs)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	// 并发提交同一仓库时由唯一约束兜底
	if dupErr := w.CheckDuplicate(ctx, in.Repo.URL); dupErr != nil {
		return nil, dupErr
	}
	return nil, &apperr.DuplicateEntryError{Field: "slug", Value: cs.Slug, Err: err}
}

func buildCaseStudy(in WriteInput, now time.Time) *model.CaseStudy {
	content := in.Content
	if content == nil {
		content = &genai.CaseStudyContent{}
	}

	cs := &model.CaseStudy{
		RepoURL:                in.Repo.URL,
		Slug:                   repourl.Slug(in.Repo.Name, now),
		Title:                  strings.TrimSpace(content.Title),
		Summary:                content.Summary,
		ProblemSummary:         content.ProblemSummary,
		SolutionSummary:        content.SolutionSummary,
		TechStack:              content.TechStack,
		ArchitectureOverview:   content.ArchitectureOverview,
		CoreFeatures:           jsonOrDefault(content.CoreFeatures, "[]"),
		ChallengesAndSolutions: content.ChallengesAndSolutions,
		Impact:                 content.Impact,
		ProofData:              jsonOrDefault(content.ProofData, "{}"),
		KeyFolders:             model.StringArray(in.KeyFolders),
		ActivePeriod:           unknown,
		OwnerID:                in.OwnerID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if cs.Title == "" {
		cs.Title = in.Repo.Name
	}
	if cs.KeyFolders == nil {
		cs.KeyFolders = model.StringArray{}
	}
	if in.Metadata != nil {
		cs.TotalCommits = in.Metadata.TotalCommits
		if in.Metadata.ActivePeriod != "" {
			cs.ActivePeriod = in.Metadata.ActivePeriod
		}
	}
	return cs
}

func jsonOrDefault(raw json.RawMessage, def string) datatypes.JSON {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return datatypes.JSON(def)
	}
	return datatypes.JSON(s)
}
