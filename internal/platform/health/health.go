package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"secure-pastebox/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDegraded  = "degraded"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB

	// 超時常數.
	storeTimeout = 5 * time.Second
)

// Checker 可回報是否可用的元件，例如密鑰儲存後端.
type Checker interface {
	Available(ctx context.Context) bool
	Name() string
}

// Handler 健康檢查處理器.
type Handler struct {
	appName string
	debug   bool
	store   Checker

	mu      sync.RWMutex
	sources map[string]func() interface{}
}

// NewHealthHandler 創建新的健康檢查處理器.
func NewHealthHandler(appName string, debug bool, store Checker) *Handler {
	return &Handler{
		appName: appName,
		debug:   debug,
		store:   store,
		sources: make(map[string]func() interface{}),
	}
}

// AddSource 註冊統計來源，會出現在詳細報告中.
func (h *Handler) AddSource(name string, fn func() interface{}) {
	h.mu.Lock()
	h.sources[name] = fn
	h.mu.Unlock()
}

// HealthCheck 存活檢查端點，服務在執行中即回應 "Healthy".
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, "Healthy")
}

// Details 詳細健康報告.
func (h *Handler) Details(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	storeStatus := statusHealthy
	if !h.store.Available(ctx) {
		storeStatus = statusUnhealthy
		logger.Warning(c.Request.Context(), "健康檢查 - 密鑰儲存後端不可用",
			logger.WithBackend(h.store.Name()))
	}

	systemStatus := h.checkSystemResources()

	// 從環境變數讀取版本，沒有則用預設值
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = "NO_VERSION_SET"
	}

	response := gin.H{
		"status":    statusHealthy,
		"timestamp": time.Now().Unix(),
		"app": gin.H{
			"name":    h.appName,
			"version": appVersion,
			"debug":   h.debug,
		},
		"storage": gin.H{
			"status":  storeStatus,
			"backend": h.store.Name(),
		},
		"system": gin.H{
			"status":  systemStatus.Status,
			"details": systemStatus.Details,
			"uptime":  time.Since(startTime).String(),
		},
	}

	h.mu.RLock()
	for name, fn := range h.sources {
		response[name] = fn()
	}
	h.mu.RUnlock()

	// 後端不可用時整體為 degraded，仍回應 200 讓監控區分服務本身與後端
	if storeStatus == statusUnhealthy {
		response["status"] = statusDegraded
	}

	c.JSON(http.StatusOK, response)
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// checkSystemResources 檢查系統資源.
func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	// 超過 1GB 視為警告
	status := statusHealthy
	if m.Sys/memoryMB > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{
		Status:  status,
		Details: details,
	}
}

// 記錄服務啟動時間.
var startTime = time.Now()
