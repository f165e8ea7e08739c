package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequestMetadataFromGin(t *testing.T) {
	t.Run("set by middleware", func(t *testing.T) {
		r := gin.New()
		r.Use(RequestMetadataMiddleware())
		var got *audit.Metadata
		r.GET("/", func(c *gin.Context) { got = GetRequestMetadataFromGin(c) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "198.51.100.3")
		req.Header.Set("User-Agent", "pastebox-cli")
		r.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, got)
		assert.Equal(t, "198.51.100.3", got.IPAddress)
		assert.Equal(t, "pastebox-cli", got.UserAgent)
	})

	t.Run("fallback without middleware", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.9:80"
		req.Header.Set("User-Agent", "curl/8")
		c.Request = req

		meta := GetRequestMetadataFromGin(c)
		assert.Equal(t, "192.0.2.9", meta.IPAddress)
		assert.Equal(t, "curl/8", meta.UserAgent)
	})
}

func TestAccessLogMiddleware_RouteTemplateOnly(t *testing.T) {
	var buf bytes.Buffer
	t.Cleanup(logger.SetOutput(&buf))

	r := gin.New()
	r.Use(AccessLogMiddleware())
	r.Use(RequestMetadataMiddleware())
	r.DELETE("/api/keys/:keyId", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodDelete, "/api/keys/Ab3dE9xZ", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "pastebox-cli")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "Ab3dE9xZ")

	var entry struct {
		Severity    string `json:"severity"`
		HTTPRequest struct {
			RequestURL   string `json:"requestUrl"`
			Status       int    `json:"status"`
			RemoteIP     string `json:"remoteIp"`
			UserAgent    string `json:"userAgent"`
			ResponseSize string `json:"responseSize"`
		} `json:"httpRequest"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "WARNING", entry.Severity)
	assert.Equal(t, "/api/keys/:keyId", entry.HTTPRequest.RequestURL)
	assert.Equal(t, http.StatusNotFound, entry.HTTPRequest.Status)
	assert.Equal(t, "203.0.113.7", entry.HTTPRequest.RemoteIP)
	assert.Equal(t, "pastebox-cli", entry.HTTPRequest.UserAgent)
	assert.Empty(t, entry.HTTPRequest.ResponseSize)
}
