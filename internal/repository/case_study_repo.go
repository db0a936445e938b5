package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
)

type CaseStudyRepository struct {
	db *gorm.DB
}

func NewCaseStudyRepository(db *gorm.DB) *CaseStudyRepository {
	return &CaseStudyRepository{db: db}
}

// CreateWithOwner 同一事务内补齐用户记录并写入案例
func (r *CaseStudyRepository) CreateWithOwner(ctx context.Context, cs *model.CaseStudy) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, cs.OwnerID); err != nil {
			return err
		}
		return tx.Create(cs).Error
	})
}

func (r *CaseStudyRepository) GetByID(ctx context.Context, id int64) (*model.CaseStudy, error) {
	var cs model.CaseStudy
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cs).Error
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (r *CaseStudyRepository) GetBySlug(ctx context.Context, slug string) (*model.CaseStudy, error) {
	var cs model.CaseStudy
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&cs).Error
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (r *CaseStudyRepository) GetByRepoURL(ctx context.Context, repoURL string) (*model.CaseStudy, error) {
	var cs model.CaseStudy
	err := r.db.WithContext(ctx).Where("repo_url = ?", repoURL).First(&cs).Error
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListByOwner 获取用户的案例列表
func (r *CaseStudyRepository) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.CaseStudy, int64, error) {
	var list []*model.CaseStudy
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CaseStudy{}).Where("owner_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}
