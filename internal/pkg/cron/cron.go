package cron

import (
	"context"
	"time"

	"github.com/qs3c/devhance_server/internal/model"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
)

const sweepBatch = 100

type LockSweeper interface {
	DeleteAllStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type PaymentLister interface {
	ListPaidWithoutReport(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*model.Payment, error)
}

// JobPusher 订单已有在途任务时 PushUnique 返回 false
type JobPusher interface {
	PushUnique(ctx context.Context, job *queue.ReportJob) (bool, error)
}

// Options 定时清理参数
type Options struct {
	Interval    time.Duration
	LockWindow  time.Duration
	ReportGrace time.Duration
	// MaxAttempts 与 worker 共用的失败上限，达到后只能人工处理
	MaxAttempts int
}

// Service 定时回收遗弃的分析锁，并把已付款但缺报告的订单重新入队
type Service struct {
	locks    LockSweeper
	payments PaymentLister
	jobs     JobPusher
	opts     Options
	log      logger.Logger
	now      func() time.Time
	stopChan chan struct{}
}

// Result 一次清理的统计
type Result struct {
	LocksRemoved    int64
	ReportsQueued   int
	ReportsInFlight int
	ReportsSkipped  int
}

// NewService locks 为 nil 时不清理锁（Redis 锁依赖 TTL 自动过期）
func NewService(locks LockSweeper, payments PaymentLister, jobs JobPusher, opts Options, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Service{
		locks:    locks,
		payments: payments,
		jobs:     jobs,
		opts:     opts,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.run()
	s.log.Info(context.Background(), "cron service started", "interval", s.opts.Interval.String())
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	s.log.Info(context.Background(), "cron service stopped")
}

func (s *Service) run() {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunNow(context.Background())
		}
	}
}

// RunNow 立即执行一次清理，单项失败只记录日志
func (s *Service) RunNow(ctx context.Context) Result {
	var res Result
	now := s.now()

	if s.locks != nil {
		removed, err := s.locks.DeleteAllStale(ctx, now.Add(-s.opts.LockWindow))
		if err != nil {
			s.log.Error(ctx, "sweep stale locks failed", "error", err)
		}
		res.LocksRemoved = removed
	}

	if s.payments != nil && s.jobs != nil {
		payments, err := s.payments.ListPaidWithoutReport(ctx, now.Add(-s.opts.ReportGrace), s.opts.MaxAttempts, sweepBatch)
		if err != nil {
			s.log.Error(ctx, "list paid payments without report failed", "error", err)
		}
		for _, p := range payments {
			job := &queue.ReportJob{PaymentID: p.ID, Attempt: p.ReportAttempts, Reason: "sweep"}
			queued, err := s.jobs.PushUnique(ctx, job)
			switch {
			case err != nil:
				s.log.Error(ctx, "requeue report job failed", "payment_id", p.ID, "error", err)
				res.ReportsSkipped++
			case !queued:
				res.ReportsInFlight++
			default:
				res.ReportsQueued++
			}
		}
	}

	if res.LocksRemoved > 0 || res.ReportsQueued > 0 || res.ReportsSkipped > 0 {
		s.log.Info(ctx, "sweep finished",
			"locks_removed", res.LocksRemoved,
			"reports_queued", res.ReportsQueued,
			"reports_in_flight", res.ReportsInFlight,
			"reports_skipped", res.ReportsSkipped)
	}
	return res
}
