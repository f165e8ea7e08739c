package audit

import (
	"context"
	"time"

	"secure-pastebox/internal/platform/logger"
)

// AuditService 審計服務
type AuditService struct {
	enabled bool
	sink    func(context.Context, AuditEvent)
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
		sink:    writeEvent,
	}
}

// AuditEvent 審計事件（絕不包含密鑰內容）
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	KeyID     string                 `json:"key_id,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure, blocked
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
}

// Metadata 由 HTTP 中間件放入 context 的請求來源資訊
type Metadata struct {
	IPAddress string
	UserAgent string
}

type metadataKey struct{}

// WithMetadata 將請求來源資訊放入 context
func WithMetadata(ctx context.Context, meta *Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, meta)
}

// MetadataFrom 從 context 取出請求來源資訊
func MetadataFrom(ctx context.Context) (*Metadata, bool) {
	if ctx == nil {
		return nil, false
	}
	meta, ok := ctx.Value(metadataKey{}).(*Metadata)
	return meta, ok && meta != nil
}

// LogKeySaved 記錄密鑰保存
func (a *AuditService) LogKeySaved(ctx context.Context, keyID string, expiresAt *time.Time) {
	if !a.IsEnabled() {
		return
	}

	details := map[string]interface{}{"expires": "never"}
	if expiresAt != nil {
		details["expires"] = expiresAt.UTC().Format(time.RFC3339)
	}

	a.record(ctx, AuditEvent{
		EventType: "key_saved",
		KeyID:     keyID,
		Action:    "save_key",
		Result:    "success",
		Details:   details,
	})
}

// LogKeyRetrieved 記錄密鑰取回（取回即銷毀）
func (a *AuditService) LogKeyRetrieved(ctx context.Context, keyID string) {
	if !a.IsEnabled() {
		return
	}

	a.record(ctx, AuditEvent{
		EventType: "key_retrieved",
		KeyID:     keyID,
		Action:    "get_and_delete_key",
		Result:    "success",
	})
}

// LogKeyMissed 記錄取回不存在、已使用或已過期的密鑰
func (a *AuditService) LogKeyMissed(ctx context.Context, keyID, reason string) {
	if !a.IsEnabled() {
		return
	}

	a.record(ctx, AuditEvent{
		EventType: "key_missed",
		KeyID:     keyID,
		Action:    "get_and_delete_key",
		Result:    "failure",
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded 記錄速率限制超過
func (a *AuditService) LogRateLimitExceeded(ctx context.Context, fingerprint, endpoint string) {
	if !a.IsEnabled() {
		return
	}

	a.record(ctx, AuditEvent{
		EventType: "rate_limit",
		Action:    "api_request",
		Result:    "blocked",
		Details: map[string]interface{}{
			"endpoint":    endpoint,
			"fingerprint": fingerprint,
			"reason":      "rate_limit_exceeded",
		},
	})
}

// LogSecurityEvent 記錄安全事件
func (a *AuditService) LogSecurityEvent(ctx context.Context, eventType, description, severity string, details map[string]interface{}) {
	if !a.IsEnabled() {
		return
	}

	a.record(ctx, AuditEvent{
		EventType: "security_event",
		Action:    eventType,
		Result:    severity,
		Details: map[string]interface{}{
			"description": description,
			"severity":    severity,
			"details":     details,
		},
	})
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a != nil && a.enabled
}

func (a *AuditService) record(ctx context.Context, event AuditEvent) {
	event.Timestamp = time.Now().UTC()
	if meta, ok := MetadataFrom(ctx); ok {
		event.IPAddress = meta.IPAddress
		event.UserAgent = meta.UserAgent
	}
	a.sink(ctx, event)
}

// writeEvent 以 NOTICE 級別寫入結構化日誌，log_type 標籤供日誌路由篩選
func writeEvent(ctx context.Context, event AuditEvent) {
	logger.Notice(ctx, "[AUDIT] "+event.EventType,
		logger.WithKeyID(event.KeyID),
		logger.WithAction(event.Action),
		logger.WithLabels(map[string]string{"log_type": "audit", "result": event.Result}),
		logger.WithDetails(map[string]interface{}{
			"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
			"ip_address": event.IPAddress,
			"user_agent": event.UserAgent,
			"details":    event.Details,
		}))
}
