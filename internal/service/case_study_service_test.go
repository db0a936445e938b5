package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/pubsub"
	"github.com/qs3c/devhance_server/internal/repository"
	"github.com/qs3c/devhance_server/internal/testutil"
)

type caseStudyFixture struct {
	db       *gorm.DB
	svc      *CaseStudyService
	gh       *fakeGithub
	model    *scriptedModel
	progress *progressRecorder
	locks    *repository.LockRepository
}

func setupCaseStudyService(t *testing.T) *caseStudyFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	f := &caseStudyFixture{
		db:       db,
		gh:       newFakeGithub(),
		model:    &scriptedModel{replies: []string{caseStudyReply}},
		progress: &progressRecorder{},
		locks:    repository.NewLockRepository(db),
	}
	f.svc = NewCaseStudyService(
		NewLockManager(f.locks, 10*time.Minute, nil),
		NewMetadataResolver(f.gh, nil),
		NewContextCompactor(f.gh, CompactorOptions{}, nil),
		newAdapter(f.model),
		repository.NewCaseStudyRepository(db),
		repository.NewRepoContextRepository(db),
		f.progress,
		nil,
	)
	return f
}

func TestCaseStudyService_Create(t *testing.T) {
	f := setupCaseStudyService(t)
	ctx := context.Background()

	resp, err := f.svc.Create(ctx, 11, "  https://github.com/acme/widget/  ")
	require.NoError(t, err)
	assert.NotZero(t, resp.ID)
	assert.True(t, strings.HasPrefix(resp.Slug, "widget-"))
	assert.False(t, resp.Degraded)

	detail, err := f.svc.GetBySlug(ctx, resp.Slug)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widget", detail.RepoURL)
	assert.Equal(t, "Widget", detail.Title)
	assert.JSONEq(t, `[{"name":"fast"}]`, string(detail.CoreFeatures))
	assert.JSONEq(t, `{"stars":42}`, string(detail.ProofData))
	assert.Equal(t, []string{"internal"}, detail.KeyFolders)
	assert.Equal(t, int64(11), detail.OwnerID)

	// 所有者自动创建
	var owner model.User
	require.NoError(t, f.db.First(&owner, 11).Error)

	// 上下文缓存供报告生成使用
	rc, err := repository.NewRepoContextRepository(f.db).GetByRepoURL(ctx, "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Contains(t, rc.ContextText, "--- FILE: README.md ---")
	assert.Contains(t, string(rc.Metrics), `"stars":42`)

	// 锁已释放
	_, err = f.locks.GetByOwner(ctx, 11)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.Equal(t, []string{
		pubsub.StepLocked, pubsub.StepFetching, pubsub.StepGenerating, pubsub.StepSaving, pubsub.StepDone,
	}, f.progress.Steps())
}

func TestCaseStudyService_DuplicateRepo(t *testing.T) {
	f := setupCaseStudyService(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, 11, "https://github.com/acme/widget")
	require.NoError(t, err)

	for _, variant := range []string{
		"https://github.com/acme/widget.git",
		"https://github.com/acme/widget/",
		"https://github.com/acme/widget.git/",
	} {
		_, err := f.svc.Create(ctx, 12, variant)
		var dupErr *apperr.DuplicateRepoError
		require.ErrorAs(t, err, &dupErr, variant)
		assert.Equal(t, first.ID, dupErr.CaseStudyID)
		assert.Equal(t, first.Slug, dupErr.Slug)
	}

	assert.Equal(t, 1, f.model.Calls())
	var count int64
	f.db.Model(&model.CaseStudy{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCaseStudyService_InvalidURL(t *testing.T) {
	f := setupCaseStudyService(t)

	for _, raw := range []string{"", "not a url", "https://gitlab.com/acme/widget", "https://github.com/acme"} {
		_, err := f.svc.Create(context.Background(), 11, raw)
		var vErr *apperr.ValidationError
		assert.ErrorAs(t, err, &vErr, raw)
	}
	assert.Equal(t, 0, f.model.Calls())
}

func TestCaseStudyService_LockHeld(t *testing.T) {
	f := setupCaseStudyService(t)
	ctx := context.Background()

	testutil.TestLock(t, f.db, 11, time.Now().UTC())

	_, err := f.svc.Create(ctx, 11, "https://github.com/acme/widget")
	assert.ErrorIs(t, err, apperr.ErrAnalysisInProgress)
	assert.Equal(t, 0, f.model.Calls())

	// 已有的锁不受影响
	_, err = f.locks.GetByOwner(ctx, 11)
	assert.NoError(t, err)
}

func TestCaseStudyService_StaleLockReclaimed(t *testing.T) {
	f := setupCaseStudyService(t)

	testutil.TestLock(t, f.db, 11, time.Now().UTC().Add(-time.Hour))

	resp, err := f.svc.Create(context.Background(), 11, "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.NotZero(t, resp.ID)
}

func TestCaseStudyService_GenerationRejected(t *testing.T) {
	f := setupCaseStudyService(t)
	ctx := context.Background()
	f.model.set(`{"title":"Widget"} Hope this helps!`, nil)

	_, err := f.svc.Create(ctx, 11, "https://github.com/acme/widget")
	var parseErr *apperr.GenerationParseError
	require.ErrorAs(t, err, &parseErr)
	assert.True(t, apperr.Retryable(err))

	var count int64
	f.db.Model(&model.CaseStudy{}).Count(&count)
	assert.Zero(t, count)

	_, err = f.locks.GetByOwner(ctx, 11)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	steps := f.progress.Steps()
	assert.Equal(t, pubsub.StepFailed, steps[len(steps)-1])

	// 重试成功
	f.model.set(caseStudyReply, nil)
	_, err = f.svc.Create(ctx, 11, "https://github.com/acme/widget")
	assert.NoError(t, err)
}

func TestCaseStudyService_GenerationServiceDown(t *testing.T) {
	f := setupCaseStudyService(t)
	f.model.set("", errUpstream)

	_, err := f.svc.Create(context.Background(), 11, "https://github.com/acme/widget")
	var svcErr *apperr.GenerationServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestCaseStudyService_DegradedUpstream(t *testing.T) {
	f := setupCaseStudyService(t)
	f.gh.repoErr = errUpstream
	f.gh.trees = nil

	resp, err := f.svc.Create(context.Background(), 11, "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)

	detail, err := f.svc.GetBySlug(context.Background(), resp.Slug)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.TotalCommits)
	assert.Equal(t, "Unknown", detail.ActivePeriod)
	assert.Empty(t, detail.KeyFolders)
}

func TestCaseStudyService_ConcurrentSameRepo(t *testing.T) {
	f := setupCaseStudyService(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, userID := range []int64{21, 22} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), userID, "https://github.com/acme/widget")
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		var dupErr *apperr.DuplicateRepoError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &dupErr):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	f.db.Model(&model.CaseStudy{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCaseStudyService_ListMine(t *testing.T) {
	f := setupCaseStudyService(t)
	ctx := context.Background()

	user := testutil.TestUser(t, f.db)
	testutil.TestCaseStudy(t, f.db, user.ID, testutil.WithRepoURL("https://github.com/acme/a"), testutil.WithSlug("a-0001"))
	testutil.TestCaseStudy(t, f.db, user.ID, testutil.WithRepoURL("https://github.com/acme/b"), testutil.WithSlug("b-0002"))
	testutil.TestCaseStudy(t, f.db, user.ID+1, testutil.WithRepoURL("https://github.com/acme/c"), testutil.WithSlug("c-0003"))

	items, total, err := f.svc.ListMine(ctx, user.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 1)
}

func TestCaseStudyService_GetBySlugNotFound(t *testing.T) {
	f := setupCaseStudyService(t)

	_, err := f.svc.GetBySlug(context.Background(), "missing-0000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
