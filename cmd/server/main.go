package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/devhance_server/config"
	"github.com/qs3c/devhance_server/internal/api"
	"github.com/qs3c/devhance_server/internal/api/handler"
	"github.com/qs3c/devhance_server/internal/database"
	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/githubapi"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/oss"
	"github.com/qs3c/devhance_server/internal/pkg/payment"
	"github.com/qs3c/devhance_server/internal/pkg/pubsub"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
	"github.com/qs3c/devhance_server/internal/pkg/ratelimit"
	"github.com/qs3c/devhance_server/internal/pkg/redislock"
	"github.com/qs3c/devhance_server/internal/pkg/ws"
	"github.com/qs3c/devhance_server/internal/repository"
	"github.com/qs3c/devhance_server/internal/service"
)

func main() {
	ctx := context.Background()

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

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	warnings, err := cfg.Validate()
	if err != nil {
		log.Error(ctx, "invalid config", "error", err)
		os.Exit(1)
	}
	for _, key := range warnings {
		log.Warn(ctx, "optional config missing, dependent features are disabled", "key", key)
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		log.Error(ctx, "failed to connect database", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "database connected", "driver", cfg.Database.Driver)

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Error(ctx, "failed to connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info(ctx, "redis connected")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	lockRepo := repository.NewLockRepository(db)
	caseRepo := repository.NewCaseStudyRepository(db)
	repoCtxRepo := repository.NewRepoContextRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// 分析锁存储
	var lockStore service.LockStore = lockRepo
	if cfg.Lock.Backend == "redis" {
		lockStore = redislock.NewStore(rdb, cfg.Lock.StalenessWindow)
	}
	log.Info(ctx, "analysis lock backend", "backend", cfg.Lock.Backend)

	// 外部服务
	github := githubapi.NewClient(cfg.Github.APIBaseURL, cfg.Github.Token, cfg.Github.Timeout)
	gemini := genai.NewGeminiClient(cfg.Generation.BaseURL, cfg.Generation.Model, cfg.Generation.APIKey, cfg.Generation.Timeout)

	// 初始化 OSS（可选），用于归档无法解析的模型输出
	var archiver genai.Archiver
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn(ctx, "failed to init oss client", "error", err)
		} else {
			archiver = ossClient
			log.Info(ctx, "oss client initialized")
		}
	}
	adapter := genai.NewAdapter(gemini, archiver, log)
	checkout := payment.NewCheckoutClient(cfg.Payment.APIBaseURL, cfg.Payment.APIKey, cfg.Payment.StoreID, cfg.Payment.VariantID)

	// 初始化 Queue 和 Pub/Sub
	reportQueue := queue.NewQueue(rdb, cfg.Queue.ReportQueue).WithInflightTTL(cfg.Queue.InflightTTL)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb, log)

	// 初始化 Service
	lockManager := service.NewLockManager(lockStore, cfg.Lock.StalenessWindow, log)
	metadataResolver := service.NewMetadataResolver(github, log)
	compactor := service.NewContextCompactor(github, service.CompactorOptions{
		PrimaryBranch:  cfg.Github.PrimaryBranch,
		FallbackBranch: cfg.Github.FallbackBranch,
		MaxFiles:       cfg.Github.MaxFiles,
		PerFileChars:   cfg.Github.PerFileChars,
	}, log)
	caseStudyService := service.NewCaseStudyService(
		lockManager, metadataResolver, compactor, adapter,
		caseRepo, repoCtxRepo, publisher, log,
	)
	paymentService := service.NewPaymentService(
		paymentRepo, reportRepo, caseRepo, repoCtxRepo, userRepo,
		adapter, checkout, reportQueue,
		service.PaymentOptions{WebhookSecret: cfg.Payment.WebhookSecret, RedirectURL: cfg.Payment.RedirectURL},
		log,
	)

	// WebSocket Hub，转发其他实例发布的进度
	wsHub := ws.NewHub(log)
	subCtx, stopSub := context.WithCancel(ctx)
	defer stopSub()
	go func() {
		if err := subscriber.Subscribe(subCtx, wsHub.Relay); err != nil && !errors.Is(err, context.Canceled) {
			log.Error(ctx, "progress subscription stopped", "error", err)
		}
	}()

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	// 初始化 Handler 和 Router
	router := api.NewRouter(
		handler.NewCaseStudyHandler(caseStudyService),
		handler.NewPaymentHandler(paymentService, log),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, log),
		limiter,
		cfg,
		log,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Setup(),
	}

	go func() {
		log.Info(ctx, "server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info(ctx, "received shutdown signal")

	stopSub()
	// 被劫持的 websocket 连接不受 Shutdown 管理
	wsHub.CloseAll()
	// 案例生成是同步请求，留足时间让进行中的请求完成并释放锁
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Generation.Timeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "graceful shutdown failed", "error", err)
	}
	log.Info(ctx, "server shutdown complete")
}
