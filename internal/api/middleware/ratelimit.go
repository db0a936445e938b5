package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/ratelimit"
	"github.com/qs3c/devhance_server/internal/pkg/response"
)

// RateLimit 按客户端 IP 限流；计数存储不可用时放行
func RateLimit(limiter *ratelimit.Limiter, log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			response.RateLimitError(c, "")
			return
		}
		c.Next()
	}
}
