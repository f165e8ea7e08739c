package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct{ up bool }

func (s stubChecker) Available(context.Context) bool { return s.up }
func (s stubChecker) Name() string                   { return "stub" }

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/health", h.HealthCheck)
	r.GET("/api/health/details", h.Details)
	return r
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(NewHealthHandler("test", false, stubChecker{up: false}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"Healthy"`, w.Body.String())
}

func TestDetails(t *testing.T) {
	testCases := []struct {
		name       string
		up         bool
		wantStatus string
	}{
		{"store available", true, statusHealthy},
		{"store down", false, statusDegraded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler("test", true, stubChecker{up: tc.up})
			h.AddSource("custodian", func() interface{} { return map[string]int{"saved": 3} })
			r := newTestRouter(h)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health/details", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantStatus, body["status"])
			assert.Equal(t, "stub", body["storage"].(map[string]interface{})["backend"])
			assert.Equal(t, float64(3), body["custodian"].(map[string]interface{})["saved"])
		})
	}
}
