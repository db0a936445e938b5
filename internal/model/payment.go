package model

import (
	"time"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

type Payment struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	UserID          int64     `gorm:"not null;index:idx_payment_user_case" json:"user_id"`
	CaseStudyID     int64     `gorm:"not null;index:idx_payment_user_case" json:"case_study_id"`
	ExternalOrderID *string   `gorm:"size:100;uniqueIndex" json:"external_order_id,omitempty"` // 待支付时为空
	CheckoutID      string    `gorm:"size:100" json:"checkout_id,omitempty"`
	Amount          int64     `gorm:"default:0" json:"amount"` // 最小货币单位
	Currency        string    `gorm:"size:10" json:"currency"`
	Status          string    `gorm:"size:20;default:pending;index" json:"status"` // pending, paid, failed
	ReportID        *int64    `json:"report_id,omitempty"`
	ReportAttempts  int       `gorm:"not null;default:0" json:"-"` // 报告生成失败次数
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
