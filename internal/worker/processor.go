package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
)

const popTimeout = 5 * time.Second

// ReportRetrier 为已支付订单补生成报告
type ReportRetrier interface {
	RetryReport(ctx context.Context, paymentID int64) (int64, error)
}

type JobQueue interface {
	Push(ctx context.Context, job *queue.ReportJob) error
	Pop(ctx context.Context, timeout time.Duration) (*queue.ReportJob, error)
	Bury(ctx context.Context, job *queue.ReportJob, cause error) error
	Release(ctx context.Context, paymentID int64) error
}

type Options struct {
	MaxAttempts int
	// Backoff 第 n 次失败后重新入队前的等待
	Backoff func(attempt int) time.Duration
}

// Processor 消费报告重试队列
type Processor struct {
	retrier ReportRetrier
	jobs    JobQueue
	opts    Options
	log     logger.Logger
}

func NewProcessor(retrier ReportRetrier, jobs JobQueue, opts Options, log logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff == nil {
		opts.Backoff = func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 10 * time.Second
		}
	}
	return &Processor{retrier: retrier, jobs: jobs, opts: opts, log: log}
}

// Process 处理单个任务，失败时按次数退避后重新入队，超过上限转入死信列表。
// 成功、丢弃和放弃都会释放订单的在途标记，重新入队时标记保持。
func (p *Processor) Process(ctx context.Context, job *queue.ReportJob) error {
	ctx = logger.WithFields(ctx, "payment_id", job.PaymentID, "attempt", job.Attempt)

	reportID, err := p.retrier.RetryReport(ctx, job.PaymentID)
	if err == nil {
		if reportID != 0 {
			p.log.Info(ctx, "report ready", "report_id", reportID)
		}
		p.release(ctx, job)
		return nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		p.log.Warn(ctx, "drop report job for unknown payment or case study", "error", err)
		p.release(ctx, job)
		return nil
	}

	next := job.Attempt + 1
	if next >= p.opts.MaxAttempts {
		p.log.Error(ctx, "report generation abandoned, manual follow-up required", "error", err)
		if buryErr := p.jobs.Bury(context.WithoutCancel(ctx), job, err); buryErr != nil {
			p.log.Error(ctx, "bury report job failed", "error", buryErr)
		}
		p.release(ctx, job)
		return err
	}

	p.log.Warn(ctx, "report generation failed, will retry", "next_attempt", next, "error", err)
	select {
	case <-ctx.Done():
	case <-time.After(p.opts.Backoff(next)):
	}

	retry := &queue.ReportJob{PaymentID: job.PaymentID, Attempt: next, Reason: err.Error()}
	if pushErr := p.jobs.Push(context.WithoutCancel(ctx), retry); pushErr != nil {
		p.log.Error(ctx, "requeue report job failed", "error", pushErr)
	}
	return err
}

func (p *Processor) release(ctx context.Context, job *queue.ReportJob) {
	if err := p.jobs.Release(context.WithoutCancel(ctx), job.PaymentID); err != nil {
		p.log.Warn(ctx, "release inflight marker failed", "error", err)
	}
}

// Run 启动 workers 个消费循环，阻塞直到 ctx 取消
func (p *Processor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					p.log.Info(ctx, "worker shutting down", "worker_id", workerID)
					return
				}

				job, err := p.jobs.Pop(ctx, popTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if errors.Is(err, queue.ErrMalformedJob) {
						p.log.Warn(ctx, "malformed report job parked", "worker_id", workerID, "error", err)
						continue
					}
					p.log.Error(ctx, "pop report job failed", "worker_id", workerID, "error", err)
					select {
					case <-ctx.Done():
					case <-time.After(time.Second):
					}
					continue
				}
				if job == nil {
					continue // 超时，继续等待
				}

				_ = p.Process(ctx, job)
			}
		}(i)
	}
	wg.Wait()
}
