package middleware

import (
	"fmt"
	"time"

	"secure-pastebox/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware 以 GCP httpRequest 格式記錄每個請求
// 只記錄路由模板（/api/keys/:keyId），不記錄實際路徑中的識別碼
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		severity := logger.SeverityInfo
		switch {
		case status >= 500:
			severity = logger.SeverityError
		case status >= 400:
			severity = logger.SeverityWarning
		}

		size := int64(c.Writer.Size())
		if size < 0 {
			size = 0
		}

		meta := GetRequestMetadataFromGin(c)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		logger.Log(c.Request.Context(), severity, fmt.Sprintf("%s %s %d", c.Request.Method, route, status),
			logger.WithHTTPRequest(&logger.HTTPRequest{
				RequestMethod: c.Request.Method,
				RequestURL:    route,
				RequestSize:   c.Request.ContentLength,
				Status:        status,
				ResponseSize:  size,
				UserAgent:     meta.UserAgent,
				RemoteIP:      meta.IPAddress,
				Latency:       fmt.Sprintf("%.3fs", time.Since(start).Seconds()),
				Protocol:      c.Request.Proto,
			}),
			logger.WithLabels(map[string]string{"log_type": "access"}))
	}
}
