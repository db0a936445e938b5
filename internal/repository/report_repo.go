package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create case_study_id 冲突时返回 gorm.ErrDuplicatedKey
func (r *ReportRepository) Create(ctx context.Context, report *model.VCReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*model.VCReport, error) {
	var report model.VCReport
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepository) GetByCaseStudyID(ctx context.Context, caseStudyID int64) (*model.VCReport, error) {
	var report model.VCReport
	err := r.db.WithContext(ctx).Where("case_study_id = ?", caseStudyID).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepository) CountByCaseStudyID(ctx context.Context, caseStudyID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VCReport{}).Where("case_study_id = ?", caseStudyID).Count(&count).Error
	return count, err
}
