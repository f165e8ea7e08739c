package logger

// LogOption 調整單筆日誌的欄位
type LogOption func(*LogEntry)

// WithKeyID 密鑰識別碼
func WithKeyID(keyID string) LogOption {
	return func(e *LogEntry) { e.KeyID = keyID }
}

// WithBackend 儲存後端名稱
func WithBackend(backend string) LogOption {
	return func(e *LogEntry) { e.Backend = backend }
}

// WithAction 操作名稱
func WithAction(action string) LogOption {
	return func(e *LogEntry) { e.Action = action }
}

// WithDetails 合併詳細信息，可與 WithError 疊加
func WithDetails(details map[string]interface{}) LogOption {
	return func(e *LogEntry) {
		if e.Details == nil {
			e.Details = make(map[string]interface{}, len(details))
		}
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithError 將錯誤寫入 details.error
func WithError(err error) LogOption {
	return func(e *LogEntry) {
		if err == nil {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]interface{}, 1)
		}
		e.Details["error"] = err.Error()
	}
}

func WithHTTPRequest(req *HTTPRequest) LogOption {
	return func(e *LogEntry) { e.HTTPRequest = req }
}

func WithOperation(op *Operation) LogOption {
	return func(e *LogEntry) { e.Operation = op }
}

// WithLabels 合併標籤
func WithLabels(labels map[string]string) LogOption {
	return func(e *LogEntry) {
		if e.Labels == nil {
			e.Labels = make(map[string]string, len(labels))
		}
		for k, v := range labels {
			e.Labels[k] = v
		}
	}
}
