package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

// Sign 原始请求体的 HMAC-SHA256 十六进制摘要
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 常量时间比较签名，密钥未配置时返回 ErrConfiguration
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("webhook secret: %w", apperr.ErrConfiguration)
	}
	expected := []byte(Sign(secret, body))
	got := []byte(strings.ToLower(strings.TrimSpace(signature)))
	if !hmac.Equal(expected, got) {
		return apperr.ErrInvalidSignature
	}
	return nil
}
