// Package payment Lemon Squeezy 结账与 webhook 协议
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

type CheckoutRequest struct {
	UserID      int64
	CaseStudyID int64
	PaymentID   int64
	RedirectURL string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type CheckoutClient struct {
	baseURL    string
	apiKey     string
	storeID    string
	variantID  string
	httpClient *http.Client
}

func NewCheckoutClient(baseURL, apiKey, storeID, variantID string) *CheckoutClient {
	return &CheckoutClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		storeID:    storeID,
		variantID:  variantID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

func newRelationship(typ, id string) relationship {
	var r relationship
	r.Data.Type = typ
	r.Data.ID = id
	return r
}

// CreateCheckout 创建结账会话，custom 数据会在 webhook 中原样带回
func (c *CheckoutClient) CreateCheckout(ctx context.Context, in CheckoutRequest) (*CheckoutSession, error) {
	if c.apiKey == "" || c.storeID == "" || c.variantID == "" {
		return nil, fmt.Errorf("lemon squeezy checkout: %w", apperr.ErrConfiguration)
	}

	custom := map[string]string{
		"user_id":       strconv.FormatInt(in.UserID, 10),
		"case_study_id": strconv.FormatInt(in.CaseStudyID, 10),
	}
	if in.PaymentID > 0 {
		custom["payment_id"] = strconv.FormatInt(in.PaymentID, 10)
	}

	attributes := map[string]interface{}{
		"checkout_data": map[string]interface{}{"custom": custom},
	}
	if in.RedirectURL != "" {
		attributes["product_options"] = map[string]interface{}{"redirect_url": in.RedirectURL}
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "checkouts",
			"attributes": attributes,
			"relationships": map[string]relationship{
				"store":   newRelationship("stores", c.storeID),
				"variant": newRelationship("variants", c.variantID),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lemon squeezy checkout: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("lemon squeezy checkout read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lemon squeezy checkout: status %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("lemon squeezy checkout decode: %w", err)
	}
	if out.Data.Attributes.URL == "" {
		return nil, fmt.Errorf("lemon squeezy checkout: response has no url")
	}

	return &CheckoutSession{ID: out.Data.ID, URL: out.Data.Attributes.URL}, nil
}
