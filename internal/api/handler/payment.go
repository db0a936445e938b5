package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/api/middleware"
	"github.com/qs3c/devhance_server/internal/model/dto"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/response"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// PaymentService 由 service.PaymentService 实现
type PaymentService interface {
	CreateCheckout(ctx context.Context, userID, caseStudyID int64) (*dto.CheckoutResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*dto.WebhookResponse, error)
	GetReport(ctx context.Context, userID, reportID int64) (*dto.VCReportDetail, error)
}

type PaymentHandler struct {
	paymentService PaymentService
	log            logger.Logger
}

func NewPaymentHandler(paymentService PaymentService, log logger.Logger) *PaymentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentHandler{
		paymentService: paymentService,
		log:            log,
	}
}

// Checkout 发起报告购买，已有报告时直接返回 report_id
// POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.paymentService.CreateCheckout(c.Request.Context(), userID, req.CaseStudyID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, resp)
}

// Webhook 支付回调。回调方按 HTTP 状态码决定是否重投，这里必须返回真实状态码
// POST /api/v1/webhooks/lemonsqueezy
func (h *PaymentHandler) Webhook(c *gin.Context) {
	// 签名针对原始字节计算，不能先做 JSON 绑定
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeParamError, "无法读取请求体", nil)
		return
	}

	resp, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if err != nil {
		var validationErr *apperr.ValidationError
		switch {
		case errors.Is(err, apperr.ErrInvalidSignature):
			response.ErrorWithStatus(c, http.StatusUnauthorized, response.CodeInvalidSignature, "", nil)
		case errors.As(err, &validationErr):
			response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeParamError, validationErr.Error(), nil)
		case errors.Is(err, apperr.ErrConfiguration):
			response.ErrorWithStatus(c, http.StatusInternalServerError, response.CodeNotConfigured, "", nil)
		default:
			h.log.Error(c.Request.Context(), "webhook processing failed", "error", err)
			response.ErrorWithStatus(c, http.StatusInternalServerError, response.CodeServerError, "", nil)
		}
		return
	}

	response.Success(c, resp)
}

// GetReport 报告详情，仅购买者可见
// GET /api/v1/vc-reports/:id
func (h *PaymentHandler) GetReport(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	reportID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || reportID <= 0 {
		response.ParamError(c, "无效的报告ID")
		return
	}

	detail, err := h.paymentService.GetReport(c.Request.Context(), userID, reportID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, detail)
}
