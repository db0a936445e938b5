package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ClaimPending 把回调订单绑定到尚无订单号的待支付记录，并发时只有一方成功
func (r *PaymentRepository) ClaimPending(ctx context.Context, p *model.Payment) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ? AND external_order_id IS NULL", p.ID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"external_order_id": p.ExternalOrderID,
			"amount":            p.Amount,
			"currency":          p.Currency,
			"status":            p.Status,
		})
	return res.RowsAffected == 1, res.Error
}

// AdvanceStatus 仅从 pending 迁移，已支付或失败的记录不会被改写
func (r *PaymentRepository) AdvanceStatus(ctx context.Context, id int64, status string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Update("status", status)
	return res.RowsAffected == 1, res.Error
}

func (r *PaymentRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Payment{}, id).Error
}

func (r *PaymentRepository) UpdateCheckoutID(ctx context.Context, id int64, checkoutID string) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", id).Update("checkout_id", checkoutID).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("external_order_id = ?", orderID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindLatestPending 同一用户、同一案例下最近的待支付记录
func (r *PaymentRepository) FindLatestPending(ctx context.Context, userID, caseStudyID int64) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND case_study_id = ? AND status = ? AND external_order_id IS NULL",
			userID, caseStudyID, model.PaymentStatusPending).
		Order("created_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LinkReport report_id 只写一次，已有值时不覆盖
func (r *PaymentRepository) LinkReport(ctx context.Context, paymentID, reportID int64) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND report_id IS NULL", paymentID).
		Update("report_id", reportID).Error
}

// ListPaidWithoutReport 已支付但尚未关联报告、失败次数低于 maxAttempts 且最后更新早于 before 的记录
func (r *PaymentRepository) ListPaidWithoutReport(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*model.Payment, error) {
	var list []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND report_id IS NULL AND updated_at < ? AND report_attempts < ?",
			model.PaymentStatusPaid, before, maxAttempts).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// RecordReportFailure 失败次数加一并刷新 updated_at，返回累计次数
func (r *PaymentRepository) RecordReportFailure(ctx context.Context, id int64) (int, error) {
	err := r.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", id).
		Updates(map[string]interface{}{"report_attempts": gorm.Expr("report_attempts + 1")}).Error
	if err != nil {
		return 0, err
	}
	var attempts int
	err = r.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", id).
		Pluck("report_attempts", &attempts).Error
	return attempts, err
}
