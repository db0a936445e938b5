package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

const (
	EventOrderCreated = "order_created"
	EventOrderPaid    = "order_paid"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// FlexID custom_data 中的 id 可能是字符串或数字
type FlexID int64

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*f = FlexID(n)
	return nil
}

type CustomData struct {
	UserID      FlexID `json:"user_id"`
	CaseStudyID FlexID `json:"case_study_id"`
	PaymentID   FlexID `json:"payment_id"`
}

type OrderAttributes struct {
	Status   string `json:"status"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type WebhookEvent struct {
	Meta struct {
		EventName  string     `json:"event_name"`
		CustomData CustomData `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		Attributes OrderAttributes `json:"attributes"`
	} `json:"data"`
}

// ParseWebhook 解码回调，只校验事件名
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperr.Validation("body", "malformed webhook payload: "+err.Error())
	}
	if evt.Meta.EventName == "" {
		return nil, apperr.Validation("meta.event_name", "missing event name")
	}
	return &evt, nil
}

// Handled 是否为需要处理的订单事件
func (e *WebhookEvent) Handled() bool {
	return e.Meta.EventName == EventOrderCreated || e.Meta.EventName == EventOrderPaid
}

// OrderID data.id
func (e *WebhookEvent) OrderID() string {
	return strings.TrimSpace(e.Data.ID)
}

// Status 将处理方的订单状态映射到本地状态，未知状态视为非法
func (e *WebhookEvent) Status() (string, error) {
	switch strings.ToLower(e.Data.Attributes.Status) {
	case "pending":
		return StatusPending, nil
	case "paid":
		return StatusPaid, nil
	case "failed":
		return StatusFailed, nil
	default:
		return "", apperr.Validation("data.attributes.status", fmt.Sprintf("unsupported order status %q", e.Data.Attributes.Status))
	}
}

// ValidateOrder 订单事件必须携带的字段
func (e *WebhookEvent) ValidateOrder() error {
	if e.OrderID() == "" {
		return apperr.Validation("data.id", "missing order id")
	}
	if e.Meta.CustomData.UserID <= 0 || e.Meta.CustomData.CaseStudyID <= 0 {
		return apperr.Validation("meta.custom_data", "missing user_id or case_study_id")
	}
	if e.Data.Attributes.Currency == "" {
		return apperr.Validation("data.attributes.currency", "missing currency")
	}
	if _, err := e.Status(); err != nil {
		return err
	}
	return nil
}
