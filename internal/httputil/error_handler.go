package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// SafeError 安全的錯誤響應（不洩露內部信息）
func SafeError(c *gin.Context, statusCode, code int, err error, userMessage string) {
	requestID := middleware.GetRequestID(c)

	// 記錄真實錯誤到日誌
	logger.Error(c.Request.Context(), fmt.Sprintf("API Error: %v", err),
		logger.WithHTTPRequest(&logger.HTTPRequest{
			RequestMethod: c.Request.Method,
			RequestURL:    c.FullPath(),
			Status:        statusCode,
			UserAgent:     c.Request.UserAgent(),
			RemoteIP:      middleware.GetClientIP(c),
		}),
		logger.WithDetails(map[string]interface{}{
			"request_id": requestID,
		}))

	message := userMessage
	if shouldShowError(err) {
		message = err.Error()
	}

	errorResponse(c, statusCode, code, message)
}

// shouldShowError 判斷是否可以向用戶顯示錯誤詳情
func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	// 不應顯示的錯誤關鍵字（可能洩露敏感信息）
	dangerousKeywords := []string{
		"mongo",
		"database",
		"connection",
		"password",
		"token",
		"secret",
		"credential",
		"grpc",
		"internal",
		"stack",
		"panic",
		"storage",
		"file",
		"directory",
		"key",
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range dangerousKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}

	return true
}

func errorResponse(c *gin.Context, statusCode, code int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"error":      message,
		"code":       code,
		"success":    false,
		"request_id": middleware.GetRequestID(c),
	})
}

// InternalServerError 內部服務器錯誤
func InternalServerError(c *gin.Context, err error) {
	SafeError(c, http.StatusInternalServerError, ErrorCodeStorageFailure, err, "Internal server error. Please try again later.")
}

// BadRequest 錯誤的請求
func BadRequest(c *gin.Context, code int, message string) {
	errorResponse(c, http.StatusBadRequest, code, message)
}

// NotFoundError 資源不存在
func NotFoundError(c *gin.Context, message string) {
	if message == "" {
		message = NotFound
	}
	errorResponse(c, http.StatusNotFound, ErrorCodeKeyNotFound, message)
}

// RequestTooLarge 請求體過大
func RequestTooLarge(c *gin.Context, maxSize int64) {
	errorResponse(c, http.StatusRequestEntityTooLarge, ErrorCodeBodyTooLarge,
		fmt.Sprintf("Request body exceeds %d bytes.", maxSize))
}
