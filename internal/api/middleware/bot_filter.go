package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/pkg/response"
)

var botPatterns = []string{
	"bot", "spider", "crawl", "scraper", "mediapartners", "apis-google",
	"curl", "wget", "python-requests", "postman", "insomnia", "slurp",
}

// 搜索引擎白名单
var allowedBots = []string{
	"googlebot", "bingbot", "duckduckbot", "baiduspider", "yandexbot",
	"sogou", "exabot", "facebot", "ia_archiver",
}

// IsBot 空 UA 视为机器人
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, b := range allowedBots {
		if strings.Contains(ua, b) {
			return false
		}
	}
	for _, p := range botPatterns {
		if strings.Contains(ua, p) {
			return true
		}
	}
	return false
}

// BotFilter 拦截脚本和爬虫对写接口的调用
func BotFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsBot(c.Request.UserAgent()) {
			response.ErrorWithStatus(c, http.StatusForbidden, response.CodePermissionDenied, "", nil)
			return
		}
		c.Next()
	}
}
