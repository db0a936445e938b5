package service

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/model/dto"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/pubsub"
	"github.com/qs3c/devhance_server/internal/pkg/repourl"
	"github.com/qs3c/devhance_server/internal/repository"
)

const timeLayout = "2006-01-02T15:04:05Z"

type CaseStudyGenerator interface {
	GenerateCaseStudy(ctx context.Context, in genai.CaseStudyInput) (*genai.CaseStudyContent, error)
}

// ProgressPublisher 推送生成进度，可为 nil
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

type CaseStudyService struct {
	locks       *LockManager
	metadata    *MetadataResolver
	compactor   *ContextCompactor
	generator   CaseStudyGenerator
	writer      *CaseStudyWriter
	caseRepo    *repository.CaseStudyRepository
	repoCtxRepo *repository.RepoContextRepository
	progress    ProgressPublisher
	log         logger.Logger
}

func NewCaseStudyService(
	locks *LockManager,
	metadata *MetadataResolver,
	compactor *ContextCompactor,
	generator CaseStudyGenerator,
	caseRepo *repository.CaseStudyRepository,
	repoCtxRepo *repository.RepoContextRepository,
	progress ProgressPublisher,
	log logger.Logger,
) *CaseStudyService {
	if log == nil {
		log = logger.Nop()
	}
	return &CaseStudyService{
		locks:       locks,
		metadata:    metadata,
		compactor:   compactor,
		generator:   generator,
		writer:      NewCaseStudyWriter(caseRepo),
		caseRepo:    caseRepo,
		repoCtxRepo: repoCtxRepo,
		progress:    progress,
		log:         log,
	}
}

// Create 为仓库生成案例：规范化 URL，去重，持锁完成取数、生成、入库
func (s *CaseStudyService) Create(ctx context.Context, userID int64, rawURL string) (*dto.CreateCaseStudyResponse, error) {
	repo, err := repourl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, "user_id", userID, "repo", repo.URL)

	if err := s.writer.CheckDuplicate(ctx, repo.URL); err != nil {
		return nil, err
	}

	var resp *dto.CreateCaseStudyResponse
	err = s.locks.WithLock(ctx, userID, repo.URL, func(ctx context.Context) error {
		var err error
		resp, err = s.run(ctx, userID, repo)
		return err
	})
	if err != nil {
		s.logFailure(ctx, err)
		if !errors.Is(err, apperr.ErrAnalysisInProgress) {
			s.publish(ctx, &pubsub.ProgressMessage{UserID: userID, RepoURL: repo.URL, Step: pubsub.StepFailed, Error: failureMessage(err)})
		}
		return nil, err
	}
	return resp, nil
}

func (s *CaseStudyService) run(ctx context.Context, userID int64, repo repourl.Repo) (*dto.CreateCaseStudyResponse, error) {
	s.publish(ctx, &pubsub.ProgressMessage{UserID: userID, RepoURL: repo.URL, Step: pubsub.StepLocked})

	// 等锁期间可能已被其他请求创建
	if err := s.writer.CheckDuplicate(ctx, repo.URL); err != nil {
		return nil, err
	}

	s.publish(ctx, &pubsub.ProgressMessage{UserID: userID, RepoURL: repo.URL, Step: pubsub.StepFetching})
	var (
		meta   Resolved[*RepoMetadata]
		digest Resolved[*RepoDigest]
		g      errgroup.Group
	)
	g.Go(func() error {
		meta = s.metadata.ResolveRepo(ctx, repo)
		return nil
	})
	g.Go(func() error {
		digest = s.compactor.Compact(ctx, repo.Owner, repo.Name, "")
		return nil
	})
	_ = g.Wait()

	if err := s.saveContext(ctx, repo, meta.Value, digest.Value); err != nil {
		return nil, err
	}

	s.publish(ctx, &pubsub.ProgressMessage{UserID: userID, RepoURL: repo.URL, Step: pubsub.StepGenerating})
	content, err := s.generator.GenerateCaseStudy(ctx, genai.CaseStudyInput{
		Context:  digest.Value.Text,
		Metadata: meta.Value,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, &pubsub.ProgressMessage{UserID: userID, RepoURL: repo.URL, Step: pubsub.StepSaving})
	cs, err := s.writer.Write(ctx, WriteInput{
		OwnerID:    userID,
		Repo:       repo,
		Content:    content,
		Metadata:   meta.Value,
		KeyFolders: digest.Value.KeyFolders,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, &pubsub.ProgressMessage{
		UserID: userID, RepoURL: repo.URL, Step: pubsub.StepDone,
		CaseStudyID: cs.ID, Slug: cs.Slug,
	})
	s.log.Info(ctx, "case study created", "case_study_id", cs.ID, "slug", cs.Slug,
		"metadata_degraded", meta.Degraded, "context_degraded", digest.Degraded)

	return &dto.CreateCaseStudyResponse{
		ID:       cs.ID,
		Slug:     cs.Slug,
		Degraded: meta.Degraded || digest.Degraded,
	}, nil
}

// saveContext 缓存仓库上下文与元数据，供后续报告生成复用
func (s *CaseStudyService) saveContext(ctx context.Context, repo repourl.Repo, meta *RepoMetadata, digest *RepoDigest) error {
	metrics, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.repoCtxRepo.Upsert(ctx, &model.RepoContext{
		RepoURL:       repo.URL,
		OwnerLogin:    repo.Owner,
		RepoName:      repo.Name,
		StarCount:     meta.Stars,
		DefaultBranch: digest.Branch,
		ContextText:   digest.Text,
		Metrics:       datatypes.JSON(metrics),
	})
}

func (s *CaseStudyService) publish(ctx context.Context, msg *pubsub.ProgressMessage) {
	if s.progress == nil {
		return
	}
	if err := s.progress.PublishProgress(ctx, msg); err != nil {
		s.log.Warn(ctx, "publish progress failed", "step", msg.Step, "error", err)
	}
}

func (s *CaseStudyService) logFailure(ctx context.Context, err error) {
	var (
		dupErr   *apperr.DuplicateRepoError
		parseErr *apperr.GenerationParseError
		svcErr   *apperr.GenerationServiceError
	)
	switch {
	case errors.Is(err, apperr.ErrAnalysisInProgress), errors.As(err, &dupErr):
		s.log.Info(ctx, "case study request rejected", "reason", err.Error())
	case errors.As(err, &parseErr), errors.As(err, &svcErr):
		s.log.Error(ctx, "case study generation failed", "error", err)
	default:
		s.log.Error(ctx, "case study pipeline failed", "error", err)
	}
}

// failureMessage 推送给前端的错误说明，不包含内部细节
func failureMessage(err error) string {
	var (
		dupErr   *apperr.DuplicateRepoError
		parseErr *apperr.GenerationParseError
		svcErr   *apperr.GenerationServiceError
	)
	switch {
	case errors.As(err, &dupErr):
		return "该仓库已有案例"
	case errors.As(err, &parseErr), errors.As(err, &svcErr):
		return "生成失败，请稍后重试"
	default:
		return "服务器内部错误"
	}
}

// GetBySlug 公开的案例详情
func (s *CaseStudyService) GetBySlug(ctx context.Context, slug string) (*dto.CaseStudyDetail, error) {
	cs, err := s.caseRepo.GetBySlug(ctx, slug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCaseStudyDetail(cs), nil
}

// ListMine 当前用户的案例列表
func (s *CaseStudyService) ListMine(ctx context.Context, userID int64, page, pageSize int) ([]*dto.CaseStudyListItem, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	list, total, err := s.caseRepo.ListByOwner(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.CaseStudyListItem, 0, len(list))
	for _, cs := range list {
		items = append(items, &dto.CaseStudyListItem{
			ID:        cs.ID,
			Slug:      cs.Slug,
			Title:     cs.Title,
			RepoURL:   cs.RepoURL,
			CreatedAt: cs.CreatedAt.UTC().Format(timeLayout),
		})
	}
	return items, total, nil
}

func toCaseStudyDetail(cs *model.CaseStudy) *dto.CaseStudyDetail {
	folders := []string(cs.KeyFolders)
	if folders == nil {
		folders = []string{}
	}
	return &dto.CaseStudyDetail{
		ID:                     cs.ID,
		Slug:                   cs.Slug,
		RepoURL:                cs.RepoURL,
		Title:                  cs.Title,
		Summary:                cs.Summary,
		ProblemSummary:         cs.ProblemSummary,
		SolutionSummary:        cs.SolutionSummary,
		TechStack:              cs.TechStack,
		ArchitectureOverview:   cs.ArchitectureOverview,
		CoreFeatures:           json.RawMessage(jsonOrDefault(json.RawMessage(cs.CoreFeatures), "[]")),
		ChallengesAndSolutions: cs.ChallengesAndSolutions,
		Impact:                 cs.Impact,
		ProofData:              json.RawMessage(jsonOrDefault(json.RawMessage(cs.ProofData), "{}")),
		KeyFolders:             folders,
		TotalCommits:           cs.TotalCommits,
		ActivePeriod:           cs.ActivePeriod,
		OwnerID:                cs.OwnerID,
		CreatedAt:              cs.CreatedAt.UTC().Format(timeLayout),
	}
}
