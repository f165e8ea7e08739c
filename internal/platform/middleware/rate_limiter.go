package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/security/audit"

	"github.com/gin-gonic/gin"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// rateLimitedCode 與 httputil.ErrorCodeRateLimitExceeded 一致
const rateLimitedCode = 4291

// RateLimiter 依請求指紋分桶的令牌桶限制器
// 每個指紋每個間隔補充一個令牌，容量為 1，超過即拒絕（不排隊）
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    rate.Limit
	interval time.Duration
	idleTTL  time.Duration
	clock    func() time.Time
	audit    *audit.AuditService

	allowed  atomic.Int64
	rejected atomic.Int64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterStats 限制器統計
type RateLimiterStats struct {
	Buckets  int   `json:"buckets"`
	Allowed  int64 `json:"allowed"`
	Rejected int64 `json:"rejected"`
}

// NewRateLimiter 創建新的速率限制器
// interval: 同一指紋兩次請求的最小間隔
// idleTTL: 閒置超過此時間的桶會被清除，不小於 interval
func NewRateLimiter(interval, idleTTL time.Duration, auditService *audit.AuditService) *RateLimiter {
	if idleTTL < interval {
		idleTTL = interval
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		limit:    rate.Every(interval),
		interval: interval,
		idleTTL:  idleTTL,
		clock:    time.Now,
		audit:    auditService,
	}
}

// Allow 檢查指紋是否可以在現在發出請求
func (rl *RateLimiter) Allow(fingerprint string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	b, exists := rl.buckets[fingerprint]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, 1)}
		rl.buckets[fingerprint] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		rl.allowed.Inc()
		return true
	}
	rl.rejected.Inc()
	return false
}

// Middleware 返回 Gin 中間件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := Fingerprint(c)

		if !rl.Allow(fingerprint) {
			rl.audit.LogRateLimitExceeded(c.Request.Context(), fingerprint, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests. Please try again later.",
				"code":       rateLimitedCode,
				"success":    false,
				"request_id": GetRequestID(c),
			})
			return
		}

		c.Next()
	}
}

// Evict 清除閒置過久的桶，閒置超過一個間隔的桶已回滿，清除不改變限制結果
func (rl *RateLimiter) Evict(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for fingerprint, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idleTTL {
			delete(rl.buckets, fingerprint)
			evicted++
		}
	}
	return evicted
}

// RunJanitor 定期清理閒置桶，直到 ctx 取消
func (rl *RateLimiter) RunJanitor(ctx context.Context) {
	period := rl.idleTTL / 2
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := rl.Evict(rl.clock()); evicted > 0 {
				logger.Debug(ctx, "已清除閒置的速率限制桶",
					logger.WithDetails(map[string]interface{}{"evicted": evicted}))
			}
		}
	}
}

// Stats 返回統計
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	return RateLimiterStats{
		Buckets:  n,
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
	}
}
