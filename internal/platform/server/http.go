package server

import (
	"errors"
	"net/http"

	"secure-pastebox/internal/httputil"
	"secure-pastebox/internal/keys"
	"secure-pastebox/internal/platform/health"
	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// Dependencies HTTP 層需要的元件，由 main 組裝
type Dependencies struct {
	Custodian      *keys.Custodian
	RateLimiter    *middleware.RateLimiter
	Health         *health.Handler
	MaxBodySize    int64
	AllowedOrigins []string
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 純 API，不載入任何資源
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")

		c.Header("Referrer-Policy", "no-referrer")

		// 回應可能帶有密鑰，禁止任何快取
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")

		c.Next()
	}
}

// corsMiddleware 只對設定中的來源回應 CORS 標頭
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowedOrigins := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Router 設定路由
func Router(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(corsMiddleware(deps.AllowedOrigins))

	// 添加請求 ID 中間件（最優先）
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccessLogMiddleware())

	// 添加安全標頭中間件
	r.Use(securityHeadersMiddleware())

	// 添加請求元數據中間件（提取 IP、User-Agent）
	r.Use(middleware.RequestMetadataMiddleware())

	// 添加請求大小限制
	r.Use(middleware.RequestSizeLimiter(deps.MaxBodySize))

	h := &keyHandler{custodian: deps.Custodian, maxBodySize: deps.MaxBodySize}

	api := r.Group("/api")
	api.GET("/health", deps.Health.HealthCheck)
	api.GET("/health/details", deps.Health.Details)

	api.POST("/keys", h.saveKey)
	// 只有取回端點受速率限制
	api.DELETE("/keys/:keyId", deps.RateLimiter.Middleware(), h.getAndDeleteKey)

	return r
}

type keyHandler struct {
	custodian   *keys.Custodian
	maxBodySize int64
}

type saveKeyRequest struct {
	Key        string          `json:"key"`
	Expiration keys.Expiration `json:"expiration"`
}

// saveKey 保存密鑰並回傳識別碼
func (h *keyHandler) saveKey(c *gin.Context) {
	var req saveKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httputil.RequestTooLarge(c, h.maxBodySize)
		case errors.Is(err, keys.ErrInvalidExpiration):
			httputil.BadRequest(c, httputil.ErrorCodeInvalidExpiration, httputil.InvalidExpiration)
		default:
			httputil.BadRequest(c, httputil.ErrorCodeInvalidParameter, httputil.InvalidParameter)
		}
		return
	}

	id, err := h.custodian.SaveKey(c.Request.Context(), req.Key, req.Expiration)
	switch {
	case err == nil:
	case errors.Is(err, keys.ErrEmptyKey):
		httputil.BadRequest(c, httputil.ErrorCodeEmptyKey, httputil.EmptyKey)
		return
	case errors.Is(err, keys.ErrKeyTooLong):
		httputil.BadRequest(c, httputil.ErrorCodeKeyTooLong, httputil.KeyTooLong)
		return
	case errors.Is(err, keys.ErrInvalidExpiration):
		httputil.BadRequest(c, httputil.ErrorCodeInvalidExpiration, httputil.InvalidExpiration)
		return
	default:
		httputil.InternalServerError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.SaveKeyResponse{KeyID: id})
}

// getAndDeleteKey 取回密鑰並立即銷毀
func (h *keyHandler) getAndDeleteKey(c *gin.Context) {
	id := c.Param("keyId")

	value, found, err := h.custodian.GetAndDeleteKey(c.Request.Context(), id)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if !found {
		logger.Debug(c.Request.Context(), "密鑰不存在、已過期或已取回", logger.WithKeyID(id))
		httputil.NotFoundError(c, "")
		return
	}

	c.JSON(http.StatusOK, httputil.GetKeyResponse{Key: value})
}
