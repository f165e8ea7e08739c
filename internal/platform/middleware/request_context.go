package middleware

import (
	"strings"

	"secure-pastebox/internal/security/audit"

	"github.com/gin-gonic/gin"
)

const requestMetadataKey = "request_metadata"

// RequestMetadataMiddleware 提取請求來源並存入 context 供審計使用
func RequestMetadataMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		metadata := &audit.Metadata{
			IPAddress: GetClientIP(c),
			UserAgent: c.Request.UserAgent(),
		}

		c.Set(requestMetadataKey, metadata)
		c.Request = c.Request.WithContext(audit.WithMetadata(c.Request.Context(), metadata))

		c.Next()
	}
}

// GetClientIP 獲取客戶端 IP
// 順序：X-Forwarded-For 第一跳 → X-Real-IP → 連線來源位址 → unknown
func GetClientIP(c *gin.Context) string {
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if remote := c.RemoteIP(); remote != "" {
		return remote
	}
	return "unknown"
}

// Fingerprint 速率限制使用的請求指紋：小寫的 "ip:user-agent"
func Fingerprint(c *gin.Context) string {
	return strings.ToLower(GetClientIP(c) + ":" + c.Request.UserAgent())
}

// GetRequestMetadataFromGin 從 gin.Context 獲取請求元數據
func GetRequestMetadataFromGin(c *gin.Context) *audit.Metadata {
	if metadata, exists := c.Get(requestMetadataKey); exists {
		if meta, ok := metadata.(*audit.Metadata); ok {
			return meta
		}
	}
	return &audit.Metadata{
		IPAddress: GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
}
