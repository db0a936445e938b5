package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/devhance_server/internal/model"
)

type RepoContextRepository struct {
	db *gorm.DB
}

func NewRepoContextRepository(db *gorm.DB) *RepoContextRepository {
	return &RepoContextRepository{db: db}
}

// Upsert 以 repo_url 为键覆盖写，并发写入结果等价
func (r *RepoContextRepository) Upsert(ctx context.Context, rc *model.RepoContext) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repo_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_login", "repo_name", "star_count", "default_branch",
			"context_text", "metrics", "updated_at",
		}),
	}).Create(rc).Error
}

func (r *RepoContextRepository) GetByRepoURL(ctx context.Context, repoURL string) (*model.RepoContext, error) {
	var rc model.RepoContext
	err := r.db.WithContext(ctx).Where("repo_url = ?", repoURL).First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
