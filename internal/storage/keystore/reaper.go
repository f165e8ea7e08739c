package keystore

import (
	"context"
	"errors"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/logger"

	"go.uber.org/atomic"
)

// Reaper 定期清理過期記錄的背景任務，生命週期由呼叫者的 context 控制.
type Reaper struct {
	sweeper  Sweeper
	name     string
	interval time.Duration
	clock    Clock

	runs    atomic.Int64
	removed atomic.Int64
	failed  atomic.Int64
	lastRun atomic.Time
}

// ReaperStats 清理統計.
type ReaperStats struct {
	Runs     int64     `json:"runs"`
	Removed  int64     `json:"removed"`
	Failures int64     `json:"failures"`
	LastRun  time.Time `json:"lastRun,omitempty"`
}

// NewReaper 創建清理任務，間隔非正數時使用預設值.
func NewReaper(name string, sweeper Sweeper, interval time.Duration, clock Clock) *Reaper {
	if interval <= 0 {
		interval = constants.DefaultCleanupInterval
	}
	return &Reaper{
		sweeper:  sweeper,
		name:     name,
		interval: interval,
		clock:    clock,
	}
}

// Interval 清理間隔.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

// Run 立即清理一次，之後每個間隔清理一次，直到 ctx 取消.
func (r *Reaper) Run(ctx context.Context) {
	logger.Info(ctx, "過期清理任務啟動",
		logger.WithBackend(r.name),
		logger.WithDetails(map[string]interface{}{"interval": r.interval.String()}))

	r.SweepOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "過期清理任務停止", logger.WithBackend(r.name))
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce 執行一次清理，錯誤只記錄不中斷.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	now := r.clock.now()
	op := &logger.Operation{ID: logger.NewTraceID(), Producer: "keystore.reaper"}

	removed, err := r.sweeper.Sweep(ctx, now)
	r.runs.Inc()
	r.removed.Add(int64(removed))
	r.lastRun.Store(now)

	op.First, op.Last = true, true
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		logger.Info(context.Background(), "清理因關閉而中斷",
			logger.WithBackend(r.name), logger.WithOperation(op))
	case err != nil:
		r.failed.Inc()
		logger.Error(ctx, "過期清理失敗",
			logger.WithBackend(r.name), logger.WithOperation(op), logger.WithError(err))
	case removed > 0:
		logger.Info(ctx, "已清理過期密鑰",
			logger.WithBackend(r.name),
			logger.WithOperation(op),
			logger.WithDetails(map[string]interface{}{"removed": removed}))
	}
	return removed
}

// Stats 返回目前統計.
func (r *Reaper) Stats() ReaperStats {
	return ReaperStats{
		Runs:     r.runs.Load(),
		Removed:  r.removed.Load(),
		Failures: r.failed.Load(),
		LastRun:  r.lastRun.Load(),
	}
}
