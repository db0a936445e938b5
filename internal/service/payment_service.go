package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/model/dto"
	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/payment"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
	"github.com/qs3c/devhance_server/internal/repository"
)

type ReportGenerator interface {
	GenerateVCReport(ctx context.Context, in genai.VCReportInput) (*genai.VCReportContent, error)
}

type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, in payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

// ReportQueue 报告生成失败后的重试队列
type ReportQueue interface {
	Push(ctx context.Context, job *queue.ReportJob) error
}

type PaymentOptions struct {
	WebhookSecret string
	RedirectURL   string
}

// PaymentService 结账、webhook 对账与付费报告生成
type PaymentService struct {
	paymentRepo *repository.PaymentRepository
	reportRepo  *repository.ReportRepository
	caseRepo    *repository.CaseStudyRepository
	repoCtxRepo *repository.RepoContextRepository
	userRepo    *repository.UserRepository
	generator   ReportGenerator
	checkout    CheckoutProvider
	jobs        ReportQueue
	opts        PaymentOptions
	log         logger.Logger
}

func NewPaymentService(
	paymentRepo *repository.PaymentRepository,
	reportRepo *repository.ReportRepository,
	caseRepo *repository.CaseStudyRepository,
	repoCtxRepo *repository.RepoContextRepository,
	userRepo *repository.UserRepository,
	generator ReportGenerator,
	checkout CheckoutProvider,
	jobs ReportQueue,
	opts PaymentOptions,
	log logger.Logger,
) *PaymentService {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentService{
		paymentRepo: paymentRepo,
		reportRepo:  reportRepo,
		caseRepo:    caseRepo,
		repoCtxRepo: repoCtxRepo,
		userRepo:    userRepo,
		generator:   generator,
		checkout:    checkout,
		jobs:        jobs,
		opts:        opts,
		log:         log,
	}
}

// CreateCheckout 创建待支付记录并向支付方申请结账页；报告已存在时直接返回报告 ID
func (s *PaymentService) CreateCheckout(ctx context.Context, userID, caseStudyID int64) (*dto.CheckoutResponse, error) {
	cs, err := s.caseRepo.GetByID(ctx, caseStudyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cs.OwnerID != userID {
		return nil, apperr.ErrForbidden
	}

	report, err := s.reportRepo.GetByCaseStudyID(ctx, caseStudyID)
	if err == nil {
		return &dto.CheckoutResponse{ReportID: report.ID}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if s.checkout == nil {
		return nil, fmt.Errorf("checkout provider: %w", apperr.ErrConfiguration)
	}
	if err := s.userRepo.Ensure(ctx, userID); err != nil {
		return nil, err
	}

	p := &model.Payment{
		UserID:      userID,
		CaseStudyID: caseStudyID,
		Status:      model.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateCheckout(ctx, payment.CheckoutRequest{
		UserID:      userID,
		CaseStudyID: caseStudyID,
		PaymentID:   p.ID,
		RedirectURL: s.opts.RedirectURL,
	})
	if err != nil {
		if delErr := s.paymentRepo.Delete(context.WithoutCancel(ctx), p.ID); delErr != nil {
			s.log.Error(ctx, "remove orphan pending payment failed", "payment_id", p.ID, "error", delErr)
		}
		return nil, err
	}

	if err := s.paymentRepo.UpdateCheckoutID(ctx, p.ID, session.ID); err != nil {
		s.log.Warn(ctx, "store checkout id failed", "payment_id", p.ID, "error", err)
	}

	return &dto.CheckoutResponse{
		PaymentID:   p.ID,
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	}, nil
}

// HandleWebhook 验签后按订单号幂等地记录支付，已支付时生成报告。
// 报告生成失败不影响支付状态，只入队重试。
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*dto.WebhookResponse, error) {
	if err := payment.VerifySignature(s.opts.WebhookSecret, body, signature); err != nil {
		if errors.Is(err, apperr.ErrInvalidSignature) {
			s.log.Warn(ctx, "webhook signature rejected")
		}
		return nil, err
	}

	evt, err := payment.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	if !evt.Handled() {
		s.log.Info(ctx, "webhook event ignored", "event", evt.Meta.EventName)
		return &dto.WebhookResponse{Received: true}, nil
	}
	if err := evt.ValidateOrder(); err != nil {
		return nil, err
	}
	status, _ := evt.Status()

	ctx = logger.WithFields(ctx, "order_id", evt.OrderID(), "event", evt.Meta.EventName)

	p, applied, err := s.recordPayment(ctx, evt, status)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.log.Info(ctx, "duplicate webhook delivery", "payment_id", p.ID)
		resp := &dto.WebhookResponse{Received: true, AlreadyProcessed: true, PaymentID: p.ID}
		if p.ReportID != nil {
			resp.ReportID = *p.ReportID
		}
		return resp, nil
	}

	resp := &dto.WebhookResponse{Received: true, PaymentID: p.ID}
	if p.Status != model.PaymentStatusPaid {
		s.log.Info(ctx, "payment recorded", "payment_id", p.ID, "status", p.Status)
		return resp, nil
	}

	reportID, attempts, err := s.generateReport(ctx, p)
	if errors.Is(err, apperr.ErrNotFound) {
		s.log.Error(ctx, "paid for a case study that no longer exists, manual follow-up required",
			"payment_id", p.ID, "case_study_id", p.CaseStudyID)
		return resp, nil
	}
	if err != nil {
		s.log.Error(ctx, "report generation failed after payment", "payment_id", p.ID,
			"case_study_id", p.CaseStudyID, "retryable", apperr.Retryable(err), "error", err)
		s.enqueueRetry(ctx, p.ID, attempts, err)
		resp.ReportPending = true
		return resp, nil
	}
	resp.ReportID = reportID
	s.log.Info(ctx, "payment reconciled", "payment_id", p.ID, "report_id", reportID)
	return resp, nil
}

// recordPayment 返回 applied=false 表示本次投递没有带来状态变化（重复投递）
func (s *PaymentService) recordPayment(ctx context.Context, evt *payment.WebhookEvent, status string) (*model.Payment, bool, error) {
	orderID := evt.OrderID()

	existing, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err == nil {
		return s.advance(ctx, existing, status)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	custom := evt.Meta.CustomData
	p := &model.Payment{
		UserID:          int64(custom.UserID),
		CaseStudyID:     int64(custom.CaseStudyID),
		ExternalOrderID: &orderID,
		Amount:          evt.Data.Attributes.Total,
		Currency:        evt.Data.Attributes.Currency,
		Status:          status,
	}

	if pending := s.findPending(ctx, custom); pending != nil {
		p.ID = pending.ID
		p.CheckoutID = pending.CheckoutID
		p.CreatedAt = pending.CreatedAt
		claimed, err := s.paymentRepo.ClaimPending(ctx, p)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.concurrentDelivery(ctx, orderID)
		}
		if err != nil {
			return nil, false, err
		}
		if claimed {
			return p, true, nil
		}
		// 待支付记录被并发认领，按新记录处理
		p.ID = 0
		p.CheckoutID = ""
		p.CreatedAt = time.Time{}
	}

	err = s.paymentRepo.Create(ctx, p)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.concurrentDelivery(ctx, orderID)
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// advance 同一订单从 pending 迁移到终态；其余情况视为重复投递
func (s *PaymentService) advance(ctx context.Context, p *model.Payment, status string) (*model.Payment, bool, error) {
	if p.Status != model.PaymentStatusPending || status == model.PaymentStatusPending {
		return p, false, nil
	}
	moved, err := s.paymentRepo.AdvanceStatus(ctx, p.ID, status)
	if err != nil {
		return nil, false, err
	}
	if !moved {
		return p, false, nil
	}
	p.Status = status
	return p, true, nil
}

func (s *PaymentService) concurrentDelivery(ctx context.Context, orderID string) (*model.Payment, bool, error) {
	p, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// findPending 优先使用结账时透传的 payment_id，否则取该用户该案例最近的待支付记录
func (s *PaymentService) findPending(ctx context.Context, custom payment.CustomData) *model.Payment {
	userID, caseStudyID := int64(custom.UserID), int64(custom.CaseStudyID)

	if custom.PaymentID > 0 {
		p, err := s.paymentRepo.GetByID(ctx, int64(custom.PaymentID))
		if err == nil && p.UserID == userID && p.CaseStudyID == caseStudyID &&
			p.Status == model.PaymentStatusPending && p.ExternalOrderID == nil {
			return p
		}
	}

	p, err := s.paymentRepo.FindLatestPending(ctx, userID, caseStudyID)
	if err != nil {
		return nil
	}
	return p
}

// ensureReport 每个案例最多一份报告，并发生成时以唯一约束为准
func (s *PaymentService) ensureReport(ctx context.Context, p *model.Payment) (int64, error) {
	existing, err := s.reportRepo.GetByCaseStudyID(ctx, p.CaseStudyID)
	if err == nil {
		return existing.ID, s.paymentRepo.LinkReport(ctx, p.ID, existing.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	cs, err := s.caseRepo.GetByID(ctx, p.CaseStudyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("case study %d: %w", p.CaseStudyID, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load case study %d: %w", p.CaseStudyID, err)
	}

	in := genai.VCReportInput{CaseStudy: toCaseStudyDetail(cs)}
	rc, err := s.repoCtxRepo.GetByRepoURL(ctx, cs.RepoURL)
	switch {
	case err == nil:
		in.Context = rc.ContextText
		if len(rc.Metrics) > 0 {
			in.Metrics = json.RawMessage(rc.Metrics)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.Warn(ctx, "repo context missing, generating report without it", "case_study_id", cs.ID)
	default:
		return 0, err
	}

	content, err := s.generator.GenerateVCReport(ctx, in)
	if err != nil {
		return 0, err
	}

	report, err := newVCReport(p, content)
	if err != nil {
		return 0, err
	}
	err = s.reportRepo.Create(ctx, report)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, err = s.reportRepo.GetByCaseStudyID(ctx, p.CaseStudyID)
		if err != nil {
			return 0, err
		}
		report = existing
	} else if err != nil {
		return 0, err
	}

	if err := s.paymentRepo.LinkReport(ctx, p.ID, report.ID); err != nil {
		return 0, err
	}
	return report.ID, nil
}

// generateReport 生成失败时累计订单的失败次数，返回累计值供重试队列使用
func (s *PaymentService) generateReport(ctx context.Context, p *model.Payment) (int64, int, error) {
	reportID, err := s.ensureReport(ctx, p)
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		return reportID, p.ReportAttempts, err
	}
	attempts, recErr := s.paymentRepo.RecordReportFailure(context.WithoutCancel(ctx), p.ID)
	if recErr != nil {
		s.log.Error(ctx, "record report failure failed", "payment_id", p.ID, "error", recErr)
		attempts = p.ReportAttempts + 1
	}
	p.ReportAttempts = attempts
	return 0, attempts, err
}

func newVCReport(p *model.Payment, content *genai.VCReportContent) (*model.VCReport, error) {
	scores, err := json.Marshal(content.Scores)
	if err != nil {
		return nil, err
	}
	narratives, err := json.Marshal(content.NarrativeSections)
	if err != nil {
		return nil, err
	}
	return &model.VCReport{
		CaseStudyID:       p.CaseStudyID,
		UserID:            p.UserID,
		Scores:            datatypes.JSON(scores),
		NarrativeSections: datatypes.JSON(narratives),
		Verdict:           content.Verdict,
	}, nil
}

func (s *PaymentService) enqueueRetry(ctx context.Context, paymentID int64, attempt int, cause error) {
	if s.jobs == nil {
		return
	}
	job := &queue.ReportJob{PaymentID: paymentID, Attempt: attempt, Reason: cause.Error()}
	if err := s.jobs.Push(context.WithoutCancel(ctx), job); err != nil {
		s.log.Error(ctx, "enqueue report retry failed", "payment_id", paymentID, "error", err)
	}
}

// RetryReport 重试队列与定时任务的入口，已有报告或未支付时直接返回
func (s *PaymentService) RetryReport(ctx context.Context, paymentID int64) (int64, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if p.Status != model.PaymentStatusPaid {
		return 0, nil
	}
	if p.ReportID != nil {
		return *p.ReportID, nil
	}
	reportID, _, err := s.generateReport(ctx, p)
	return reportID, err
}

// GetReport 报告仅对购买者可见
func (s *PaymentService) GetReport(ctx context.Context, userID, reportID int64) (*dto.VCReportDetail, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, apperr.ErrForbidden
	}
	return &dto.VCReportDetail{
		ID:                report.ID,
		CaseStudyID:       report.CaseStudyID,
		Scores:            json.RawMessage(report.Scores),
		NarrativeSections: json.RawMessage(report.NarrativeSections),
		Verdict:           report.Verdict,
		CreatedAt:         report.CreatedAt.UTC().Format(timeLayout),
	}, nil
}
