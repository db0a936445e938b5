package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/devhance_server/internal/api/middleware"
	"github.com/qs3c/devhance_server/internal/model/dto"
	"github.com/qs3c/devhance_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData 把 data 字段解到具体类型
func decodeData(t *testing.T, resp response.Response, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

type stubCaseStudyService struct {
	createFn func(ctx context.Context, userID int64, rawURL string) (*dto.CreateCaseStudyResponse, error)
	getFn    func(ctx context.Context, slug string) (*dto.CaseStudyDetail, error)
	listFn   func(ctx context.Context, userID int64, page, pageSize int) ([]*dto.CaseStudyListItem, int64, error)
}

func (s *stubCaseStudyService) Create(ctx context.Context, userID int64, rawURL string) (*dto.CreateCaseStudyResponse, error) {
	return s.createFn(ctx, userID, rawURL)
}

func (s *stubCaseStudyService) GetBySlug(ctx context.Context, slug string) (*dto.CaseStudyDetail, error) {
	return s.getFn(ctx, slug)
}

func (s *stubCaseStudyService) ListMine(ctx context.Context, userID int64, page, pageSize int) ([]*dto.CaseStudyListItem, int64, error) {
	return s.listFn(ctx, userID, page, pageSize)
}

type stubPaymentService struct {
	checkoutFn func(ctx context.Context, userID, caseStudyID int64) (*dto.CheckoutResponse, error)
	webhookFn  func(ctx context.Context, body []byte, signature string) (*dto.WebhookResponse, error)
	reportFn   func(ctx context.Context, userID, reportID int64) (*dto.VCReportDetail, error)
}

func (s *stubPaymentService) CreateCheckout(ctx context.Context, userID, caseStudyID int64) (*dto.CheckoutResponse, error) {
	return s.checkoutFn(ctx, userID, caseStudyID)
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*dto.WebhookResponse, error) {
	return s.webhookFn(ctx, body, signature)
}

func (s *stubPaymentService) GetReport(ctx context.Context, userID, reportID int64) (*dto.VCReportDetail, error) {
	return s.reportFn(ctx, userID, reportID)
}
