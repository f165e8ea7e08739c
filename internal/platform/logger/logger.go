// Package logger 輸出 GCP Cloud Logging 格式的結構化 JSON 日誌.
//
// 密鑰值與受保護值絕不寫入日誌，只記錄識別碼.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"secure-pastebox/internal/platform/config"

	"github.com/google/uuid"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Severity GCP Cloud Logging 嚴重級別
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityNotice   Severity = "NOTICE"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityDefault:  0,
	SeverityDebug:    100,
	SeverityInfo:     200,
	SeverityNotice:   300,
	SeverityWarning:  400,
	SeverityError:    500,
	SeverityCritical: 600,
}

// ParseSeverity 解析 LOG_LEVEL，不認得時回傳 INFO
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; ok {
		return sev
	}
	return SeverityInfo
}

// LogEntry 一筆日誌，欄位名稱對應 GCP 的 structured logging 特殊欄位
type LogEntry struct {
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	Timestamp      string            `json:"timestamp"`
	TraceID        string            `json:"logging.googleapis.com/trace,omitempty"`
	InsertID       string            `json:"logging.googleapis.com/insertId,omitempty"`
	Labels         map[string]string `json:"logging.googleapis.com/labels,omitempty"`
	SourceLocation *SourceLocation   `json:"logging.googleapis.com/sourceLocation,omitempty"`
	Operation      *Operation        `json:"logging.googleapis.com/operation,omitempty"`
	HTTPRequest    *HTTPRequest      `json:"httpRequest,omitempty"`

	KeyID   string                 `json:"keyId,omitempty"`
	Backend string                 `json:"backend,omitempty"`
	Action  string                 `json:"action,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HTTPRequest HTTP 請求信息
type HTTPRequest struct {
	RequestMethod string `json:"requestMethod,omitempty"`
	RequestURL    string `json:"requestUrl,omitempty"`
	RequestSize   int64  `json:"requestSize,string,omitempty"`
	Status        int    `json:"status,omitempty"`
	ResponseSize  int64  `json:"responseSize,string,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	RemoteIP      string `json:"remoteIp,omitempty"`
	Latency       string `json:"latency,omitempty"` // 格式: "1.234s"
	Protocol      string `json:"protocol,omitempty"`
}

// SourceLocation 呼叫位置
type SourceLocation struct {
	File     string `json:"file,omitempty"`
	Line     int64  `json:"line,string,omitempty"`
	Function string `json:"function,omitempty"`
}

// Operation 長時間運行的操作，例如一輪過期清理
type Operation struct {
	ID       string `json:"id,omitempty"`
	Producer string `json:"producer,omitempty"`
	First    bool   `json:"first,omitempty"`
	Last     bool   `json:"last,omitempty"`
}

type traceIDKey struct{}

// sink 全域輸出狀態，以單一鎖保護
var sink = struct {
	sync.Mutex
	file     io.Writer // 輪轉檔案，未初始化時為 nil
	console  io.Writer
	minLevel Severity
}{
	console:  os.Stdout,
	minLevel: SeverityDebug,
}

var (
	projectID   = "local-dev"
	serviceName = "secure-pastebox"
)

// InitLogger 初始化日誌系統
// 環境變數：LOG_PATH（預設 ./logs）、LOG_LEVEL、GCP_PROJECT_ID、SERVICE_NAME
// 輪轉設定讀取已載入的配置，未載入時使用內建值
func InitLogger() error {
	logDir := os.Getenv("LOG_PATH")
	if logDir == "" {
		logDir = "./logs"
	}
	if id := os.Getenv("GCP_PROJECT_ID"); id != "" {
		projectID = id
	}
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		serviceName = name
	}

	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}

	rotationHours, maxAgeDays, maxSizeMB := 24, 30, 100
	if cfg := config.Get(); cfg != nil {
		if cfg.Log.RotationTimeHours > 0 {
			rotationHours = cfg.Log.RotationTimeHours
		}
		if cfg.Log.MaxAgeDays > 0 {
			maxAgeDays = cfg.Log.MaxAgeDays
		}
		if cfg.Log.MaxSizeMB > 0 {
			maxSizeMB = cfg.Log.MaxSizeMB
		}
	}

	base := filepath.Join(logDir, "app.log")
	writer, err := rotatelogs.New(
		base+".%Y%m%d",
		rotatelogs.WithLinkName(base),
		rotatelogs.WithRotationTime(time.Duration(rotationHours)*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
		rotatelogs.WithRotationSize(int64(maxSizeMB)*1024*1024),
	)
	if err != nil {
		return err
	}

	sink.Lock()
	sink.file = writer
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		sink.minLevel = ParseSeverity(level)
	}
	sink.Unlock()
	return nil
}

// CloseLogger 關閉日誌檔案
func CloseLogger() {
	sink.Lock()
	defer sink.Unlock()

	if closer, ok := sink.file.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}
	sink.file = nil
}

// SetOutput 替換主控台輸出，回傳還原函數（測試用）
func SetOutput(w io.Writer) (restore func()) {
	sink.Lock()
	prev := sink.console
	sink.console = w
	sink.Unlock()

	return func() {
		sink.Lock()
		sink.console = prev
		sink.Unlock()
	}
}

// SetLevel 設定最低輸出級別
func SetLevel(level Severity) {
	sink.Lock()
	sink.minLevel = level
	sink.Unlock()
}

func enabled(severity Severity) bool {
	sink.Lock()
	defer sink.Unlock()
	return severityRank[severity] >= severityRank[sink.minLevel]
}

func emit(entry *LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	sink.Lock()
	defer sink.Unlock()
	if sink.file != nil {
		_, _ = sink.file.Write(data)
	}
	if sink.console != nil {
		_, _ = sink.console.Write(data)
	}
}

func callerLocation(skip int) *SourceLocation {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}

	function := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		function = fn.Name()
	}
	return &SourceLocation{File: filepath.Base(file), Line: int64(line), Function: function}
}

// NewTraceID 生成新的 trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID 將 trace ID 放入 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 取出 GCP 格式的 trace：projects/<project>/traces/<id>
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	if traceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, traceID)
}

// callerSkip 從 runtime.Caller 看：callerLocation、write、公開函數、呼叫者
const callerSkip = 3

func write(ctx context.Context, severity Severity, message string, opts []LogOption) {
	if !enabled(severity) {
		return
	}

	entry := &LogEntry{
		Severity:       severity,
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:        GetTraceID(ctx),
		InsertID:       uuid.New().String(),
		Labels:         map[string]string{"service": serviceName},
		SourceLocation: callerLocation(callerSkip),
	}
	for _, opt := range opts {
		opt(entry)
	}
	emit(entry)
}

// Log 以指定級別記錄
func Log(ctx context.Context, severity Severity, message string, opts ...LogOption) {
	write(ctx, severity, message, opts)
}

// Debug 記錄 DEBUG 級別日誌
func Debug(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityDebug, message, opts)
}

// Info 記錄 INFO 級別日誌
func Info(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityInfo, message, opts)
}

// Notice 記錄 NOTICE 級別日誌，審計事件使用
func Notice(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityNotice, message, opts)
}

// Warning 記錄 WARNING 級別日誌
func Warning(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityWarning, message, opts)
}

// Error 記錄 ERROR 級別日誌
func Error(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityError, message, opts)
}

// Critical 記錄 CRITICAL 級別日誌
func Critical(ctx context.Context, message string, opts ...LogOption) {
	write(ctx, SeverityCritical, message, opts)
}

// Infof 格式化 INFO 日誌
func Infof(ctx context.Context, format string, args ...interface{}) {
	write(ctx, SeverityInfo, fmt.Sprintf(format, args...), nil)
}

// Warningf 格式化 WARNING 日誌
func Warningf(ctx context.Context, format string, args ...interface{}) {
	write(ctx, SeverityWarning, fmt.Sprintf(format, args...), nil)
}

// Errorf 格式化 ERROR 日誌
func Errorf(ctx context.Context, format string, args ...interface{}) {
	write(ctx, SeverityError, fmt.Sprintf(format, args...), nil)
}
