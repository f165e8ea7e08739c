package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bodyTooLargeCode 與 httputil.ErrorCodeBodyTooLarge 一致
const bodyTooLargeCode = 2005

// RequestSizeLimiter 限制請求體大小的中間件
// 宣告長度過大時直接拒絕，未宣告長度時由 MaxBytesReader 在讀取時截斷
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":      fmt.Sprintf("Request body exceeds %d bytes.", maxSize),
				"code":       bodyTooLargeCode,
				"success":    false,
				"request_id": GetRequestID(c),
			})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
