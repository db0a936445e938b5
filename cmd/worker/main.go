package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/devhance_server/config"
	"github.com/qs3c/devhance_server/internal/database"
	"github.com/qs3c/devhance_server/internal/pkg/cron"
	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/oss"
	"github.com/qs3c/devhance_server/internal/pkg/payment"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
	"github.com/qs3c/devhance_server/internal/repository"
	"github.com/qs3c/devhance_server/internal/service"
	"github.com/qs3c/devhance_server/internal/worker"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("component", "worker")

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid config", "error", err)
		os.Exit(1)
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database, false)
	if err != nil {
		log.Error(ctx, "failed to connect database", "error", err)
		os.Exit(1)
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Error(ctx, "failed to connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// 初始化 OSS（可选）
	var archiver genai.Archiver
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn(ctx, "failed to init oss client", "error", err)
		} else {
			archiver = ossClient
		}
	}

	gemini := genai.NewGeminiClient(cfg.Generation.BaseURL, cfg.Generation.Model, cfg.Generation.APIKey, cfg.Generation.Timeout)
	adapter := genai.NewAdapter(gemini, archiver, log)
	reportQueue := queue.NewQueue(rdb, cfg.Queue.ReportQueue).WithInflightTTL(cfg.Queue.InflightTTL)

	// 初始化 Repository
	lockRepo := repository.NewLockRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	paymentService := service.NewPaymentService(
		paymentRepo,
		repository.NewReportRepository(db),
		repository.NewCaseStudyRepository(db),
		repository.NewRepoContextRepository(db),
		repository.NewUserRepository(db),
		adapter,
		payment.NewCheckoutClient(cfg.Payment.APIBaseURL, cfg.Payment.APIKey, cfg.Payment.StoreID, cfg.Payment.VariantID),
		reportQueue,
		service.PaymentOptions{WebhookSecret: cfg.Payment.WebhookSecret, RedirectURL: cfg.Payment.RedirectURL},
		log,
	)

	// 定时清理：数据库锁兜底过期，补投漏掉的报告任务
	var sweeper cron.LockSweeper
	if cfg.Lock.Backend != "redis" {
		sweeper = lockRepo
	}
	cronService := cron.NewService(sweeper, paymentRepo, reportQueue, cron.Options{
		Interval:    cfg.Queue.SweepInterval,
		LockWindow:  cfg.Lock.StalenessWindow,
		ReportGrace: cfg.Queue.ReportGrace,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, log)
	cronService.Start()
	defer cronService.Stop()

	processor := worker.NewProcessor(paymentService, reportQueue, worker.Options{MaxAttempts: cfg.Queue.MaxAttempts}, log)

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info(ctx, "received shutdown signal")
		cancel()
	}()

	log.Info(ctx, "worker started", "max_workers", cfg.Queue.MaxWorkers, "queue", cfg.Queue.ReportQueue)
	processor.Run(ctx, cfg.Queue.MaxWorkers)
	log.Info(ctx, "worker shutdown complete")
}
