package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/config"
	"github.com/qs3c/devhance_server/internal/api/handler"
	"github.com/qs3c/devhance_server/internal/api/middleware"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/ratelimit"
)

type Router struct {
	caseStudyHandler *handler.CaseStudyHandler
	paymentHandler   *handler.PaymentHandler
	websocketHandler *handler.WebSocketHandler
	limiter          *ratelimit.Limiter
	cfg              *config.Config
	log              logger.Logger
}

// NewRouter limiter 为 nil 时不限流
func NewRouter(
	caseStudyHandler *handler.CaseStudyHandler,
	paymentHandler *handler.PaymentHandler,
	websocketHandler *handler.WebSocketHandler,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
	log logger.Logger,
) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		caseStudyHandler: caseStudyHandler,
		paymentHandler:   paymentHandler,
		websocketHandler: websocketHandler,
		limiter:          limiter,
		cfg:              cfg,
		log:              log,
	}
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	}
	return c
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID(r.log))
	engine.Use(cors.New(corsConfig(r.cfg.CORS)))

	v1 := engine.Group("/api/v1")

	// 支付回调靠签名鉴权，不按来源 IP 限流
	v1.POST("/webhooks/lemonsqueezy", r.paymentHandler.Webhook)

	api := v1.Group("")
	if r.limiter != nil {
		api.Use(middleware.RateLimit(r.limiter, r.log))
	}
	{
		// WebSocket 进度推送
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 案例详情
		api.GET("/case-studies/:slug", r.caseStudyHandler.Get)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/case-studies", r.caseStudyHandler.List)
			authenticated.GET("/vc-reports/:id", r.paymentHandler.GetReport)

			// 触发生成和付费的写接口拒绝脚本调用
			writes := authenticated.Group("")
			writes.Use(middleware.BotFilter())
			{
				writes.POST("/case-studies", r.caseStudyHandler.Create)
				writes.POST("/payments/checkout", r.paymentHandler.Checkout)
			}
		}
	}

	return engine
}
