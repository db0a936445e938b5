package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/pkg/jwt"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/response"
)

const UserIDKey = "userID"

// BearerToken 解析 Authorization 头，scheme 不区分大小写
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth 校验外部身份服务签发的 JWT，并把用户 ID 写入 gin 上下文和日志字段
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}
		token, ok := BearerToken(header)
		if !ok {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(token, jwtSecret)
		if err != nil || claims.UserID <= 0 {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithFields(c.Request.Context(), "user_id", claims.UserID))
		c.Next()
	}
}

func GetUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
