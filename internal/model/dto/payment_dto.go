package dto

import "encoding/json"

// CheckoutRequest 发起报告购买
type CheckoutRequest struct {
	CaseStudyID int64 `json:"case_study_id" binding:"required,min=1"`
}

// CheckoutResponse 已有报告时只返回 report_id
type CheckoutResponse struct {
	ReportID    int64  `json:"report_id,omitempty"`
	PaymentID   int64  `json:"payment_id,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// WebhookResponse 回调处理结果
type WebhookResponse struct {
	Received         bool  `json:"received"`
	AlreadyProcessed bool  `json:"already_processed"`
	PaymentID        int64 `json:"payment_id,omitempty"`
	ReportID         int64 `json:"report_id,omitempty"`
	ReportPending    bool  `json:"report_pending"`
}

// VCReportDetail 报告详情（仅作者可见）
type VCReportDetail struct {
	ID                int64           `json:"id"`
	CaseStudyID       int64           `json:"case_study_id"`
	Scores            json.RawMessage `json:"scores"`
	NarrativeSections json.RawMessage `json:"narrative_sections"`
	Verdict           string          `json:"verdict"`
	CreatedAt         string          `json:"created_at"`
}
