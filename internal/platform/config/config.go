package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secure-pastebox/internal/constants"

	"github.com/spf13/viper"
)

// KeyStorageType 密鑰儲存後端類型.
type KeyStorageType string

const (
	KeyStorageMemory KeyStorageType = "Memory"
	KeyStorageFiles  KeyStorageType = "Files"
	KeyStorageMongo  KeyStorageType = "Mongo"
)

// ParseKeyStorageType 解析儲存後端類型（不分大小寫，Distributed 視為 Mongo）.
func ParseKeyStorageType(s string) (KeyStorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory":
		return KeyStorageMemory, nil
	case "files", "file":
		return KeyStorageFiles, nil
	case "mongo", "mongodb", "distributed":
		return KeyStorageMongo, nil
	default:
		return "", fmt.Errorf("unsupported key storage type: %s", s)
	}
}

// Config 應用程式配置結構.
type Config struct {
	App            AppConfig
	Server         ServerConfig
	GRPC           GRPCConfig
	KeyStorage     KeyStorageConfig
	RateLimit      RateLimitConfig
	Files          FilesConfig
	DataProtection DataProtectionConfig
	Database       DatabaseConfig
	Log            LogConfig
	Security       SecurityConfig
	Limits         LimitsConfig
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name  string
	Debug bool
}

// ServerConfig 伺服器配置.
type ServerConfig struct {
	Host           string
	Port           string
	TimeoutSeconds int
	AllowedOrigins []string // CORS 允許的來源，空表示不回應跨來源請求.
}

// GRPCConfig gRPC 健康檢查服務配置.
type GRPCConfig struct {
	Enabled bool
	Port    string
}

// KeyStorageConfig 密鑰儲存配置.
type KeyStorageConfig struct {
	Type              KeyStorageType
	DefaultExpiration time.Duration
	MaxExpiration     time.Duration // 0 表示不限制.
}

// RateLimitConfig 取回端點的速率限制配置.
type RateLimitConfig struct {
	MinInterval   time.Duration
	BucketIdleTTL time.Duration
}

// FilesConfig 檔案儲存後端配置.
type FilesConfig struct {
	DataDirectory   string
	CleanupInterval time.Duration
}

// DataProtectionConfig 靜態加密配置.
type DataProtectionConfig struct {
	Enabled         bool
	ApplicationName string
	CacheKey        string
	KeyLifetime     time.Duration
}

// DatabaseConfig 資料庫配置.
type DatabaseConfig struct {
	Mongo MongoConfig
}

// MongoConfig MongoDB 配置.
type MongoConfig struct {
	URL                    string
	Database               string
	Collection             string
	Username               string
	Password               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        int
	ConnectTimeout         int
	ServerSelectionTimeout int
	TLSEnabled             bool
	TLSCAFile              string
	TLSCertFile            string
	TLSKeyFile             string
	TLSInsecureSkipVerify  bool
}

// LogConfig 日誌配置.
type LogConfig struct {
	RotationTimeHours int // 日誌輪轉時間 (小時).
	MaxAgeDays        int // 日誌保留天數.
	MaxSizeMB         int // 單個日誌檔案最大大小 (MB).
}

// SecurityConfig 安全配置.
type SecurityConfig struct {
	TLS   TLSConfig
	Audit AuditConfig
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// AuditConfig 審計配置.
type AuditConfig struct {
	Enabled bool
}

// LimitsConfig 限制配置.
type LimitsConfig struct {
	MaxBodySize  int64
	MaxKeyLength int
}

// envNames 每個設定鍵預設對應的環境變數名稱，可在配置檔以 <key>_env 覆寫.
var envNames = map[string]string{
	"app.name":                         "APP_NAME",
	"app.debug":                        "APP_DEBUG",
	"server.host":                      "SERVER_HOST",
	"server.port":                      "PORT",
	"server.timeout_seconds":           "SERVER_TIMEOUT_SECONDS",
	"server.allowed_origins":           "CORS_ALLOWED_ORIGINS",
	"grpc.enabled":                     "GRPC_ENABLED",
	"grpc.port":                        "GRPC_PORT",
	"key_storage.type":                 "KEY_STORAGE_TYPE",
	"default_expiration":               "DEFAULT_EXPIRATION",
	"max_expiration":                   "MAX_EXPIRATION",
	"rate_limit.min_interval_seconds":  "RATE_LIMIT_MIN_INTERVAL_SECONDS",
	"rate_limit.bucket_idle_ttl":       "RATE_LIMIT_BUCKET_IDLE_TTL",
	"files.data_directory":             "FILES_DATA_DIRECTORY",
	"files.cleanup_interval":           "FILES_CLEANUP_INTERVAL",
	"data_protection.enabled":          "DATA_PROTECTION_ENABLED",
	"data_protection.application_name": "DATA_PROTECTION_APPLICATION_NAME",
	"data_protection.cache_key":        "DATA_PROTECTION_CACHE_KEY",
	"data_protection.key_lifetime":     "DATA_PROTECTION_KEY_LIFETIME",
	"database.mongo.url":               "MONGO_URL",
	"database.mongo.database":          "MONGO_DATABASE",
	"database.mongo.collection":        "MONGO_COLLECTION",
	"database.mongo.username":          "MONGO_USERNAME",
	"database.mongo.password":          "MONGO_PASSWORD",
	"security.tls.enabled":             "TLS_ENABLED",
	"security.tls.cert_file":           "TLS_CERT_FILE",
	"security.tls.key_file":            "TLS_KEY_FILE",
	"security.tls.ca_file":             "TLS_CA_FILE",
	"security.audit.enabled":           "AUDIT_ENABLED",
	"limits.request.max_body_size":     "MAX_BODY_SIZE",
	"limits.key.max_length":            "MAX_KEY_LENGTH",
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		if err := validateConfig(testCfg[0]); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		config = testCfg[0]
		return nil
	}

	v := viper.New()
	for key, envName := range envNames {
		v.SetDefault(key+envSuffix, envName)
	}

	// 檢查是否有 CONFIG_PATH 環境變數
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	// 配置檔為選用，缺少時全部設定走環境變數與內建預設值
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("讀取配置檔案失敗: %w", err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// FromViper 透過分層解析器從 viper 實例建立配置.
func FromViper(v *viper.Viper) (*Config, error) {
	r := NewResolver(v)

	storageType, err := ParseKeyStorageType(r.String("key_storage.type", string(KeyStorageMemory)))
	if err != nil {
		return nil, fmt.Errorf("配置驗證失敗: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:  r.String("app.name", "secure-pastebox"),
			Debug: r.Bool("app.debug", false),
		},
		Server: ServerConfig{
			Host:           r.String("server.host", "0.0.0.0"),
			Port:           r.String("server.port", "8080"),
			TimeoutSeconds: r.Int("server.timeout_seconds", constants.DefaultRequestTimeout),
			AllowedOrigins: splitList(r.String("server.allowed_origins", "")),
		},
		GRPC: GRPCConfig{
			Enabled: r.Bool("grpc.enabled", false),
			Port:    r.String("grpc.port", "8081"),
		},
		KeyStorage: KeyStorageConfig{
			Type:              storageType,
			DefaultExpiration: r.Duration("default_expiration", constants.DefaultExpiration),
			MaxExpiration:     r.Duration("max_expiration", 0),
		},
		RateLimit: RateLimitConfig{
			MinInterval:   time.Duration(r.Int("rate_limit.min_interval_seconds", int(constants.DefaultRateLimitInterval/time.Second))) * time.Second,
			BucketIdleTTL: r.Duration("rate_limit.bucket_idle_ttl", constants.DefaultBucketIdleTTL),
		},
		Files: FilesConfig{
			DataDirectory:   r.String("files.data_directory", constants.DefaultDataDirectory),
			CleanupInterval: r.Duration("files.cleanup_interval", constants.DefaultCleanupInterval),
		},
		DataProtection: DataProtectionConfig{
			Enabled:         r.Bool("data_protection.enabled", true),
			ApplicationName: r.String("data_protection.application_name", constants.DefaultApplicationName),
			CacheKey:        r.String("data_protection.cache_key", constants.DefaultKeyringCacheKey),
			KeyLifetime:     r.Duration("data_protection.key_lifetime", constants.DefaultKeyLifetime),
		},
		Database: DatabaseConfig{
			Mongo: MongoConfig{
				URL:                    r.String("database.mongo.url", constants.DefaultMongoURL),
				Database:               r.String("database.mongo.database", constants.DefaultMongoDatabase),
				Collection:             r.String("database.mongo.collection", constants.DefaultMongoCollection),
				Username:               r.String("database.mongo.username", ""),
				Password:               r.String("database.mongo.password", ""),
				MaxPoolSize:            uint64(r.Int64("database.mongo.max_pool_size", 100)),
				MinPoolSize:            uint64(r.Int64("database.mongo.min_pool_size", 0)),
				MaxConnIdleTime:        r.Int("database.mongo.max_conn_idle_time", 300),
				ConnectTimeout:         r.Int("database.mongo.connect_timeout", 10),
				ServerSelectionTimeout: r.Int("database.mongo.server_selection_timeout", 5),
				TLSEnabled:             r.Bool("database.mongo.tls_enabled", false),
				TLSCAFile:              r.String("database.mongo.tls_ca_file", ""),
				TLSCertFile:            r.String("database.mongo.tls_cert_file", ""),
				TLSKeyFile:             r.String("database.mongo.tls_key_file", ""),
				TLSInsecureSkipVerify:  r.Bool("database.mongo.tls_insecure_skip_verify", false),
			},
		},
		Log: LogConfig{
			RotationTimeHours: r.Int("log.rotation_time_hours", 24),
			MaxAgeDays:        r.Int("log.max_age_days", 30),
			MaxSizeMB:         r.Int("log.max_size_mb", 100),
		},
		Security: SecurityConfig{
			TLS: TLSConfig{
				Enabled:  r.Bool("security.tls.enabled", false),
				CertFile: r.String("security.tls.cert_file", ""),
				KeyFile:  r.String("security.tls.key_file", ""),
				CAFile:   r.String("security.tls.ca_file", ""),
			},
			Audit: AuditConfig{
				Enabled: r.Bool("security.audit.enabled", true),
			},
		},
		Limits: LimitsConfig{
			MaxBodySize:  r.Int64("limits.request.max_body_size", constants.DefaultMaxRequestBodySize),
			MaxKeyLength: r.Int("limits.key.max_length", constants.DefaultMaxKeyLength),
		},
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("解析配置失敗: %w", err)
	}

	// 閒置桶的保留時間不得短於補充週期，否則淘汰後重建會多給一個 token
	if cfg.RateLimit.BucketIdleTTL < cfg.RateLimit.MinInterval {
		cfg.RateLimit.BucketIdleTTL = cfg.RateLimit.MinInterval
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("配置驗證失敗: %w", err)
	}

	return cfg, nil
}

// splitList 解析以逗號分隔的清單，忽略空白項目.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Get 取得設定.
func Get() *Config {
	return config
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}

	// 驗證伺服器配置
	if cfg.Server.Port == "" {
		return fmt.Errorf("伺服器端口不能為空")
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("伺服器超時時間必須大於 0")
	}
	if cfg.GRPC.Enabled && cfg.GRPC.Port == "" {
		return fmt.Errorf("gRPC 端口不能為空")
	}

	// 驗證過期配置
	if cfg.KeyStorage.DefaultExpiration <= 0 {
		return fmt.Errorf("預設過期時間必須大於 0")
	}
	if cfg.KeyStorage.MaxExpiration < 0 {
		return fmt.Errorf("最大過期時間不能為負數")
	}
	if cfg.KeyStorage.MaxExpiration > 0 && cfg.KeyStorage.DefaultExpiration > cfg.KeyStorage.MaxExpiration {
		return fmt.Errorf("預設過期時間不能大於最大過期時間")
	}

	if cfg.RateLimit.MinInterval <= 0 {
		return fmt.Errorf("速率限制間隔必須大於 0")
	}

	// Memory 與 Files 共用同一個清理間隔
	if cfg.KeyStorage.Type != KeyStorageMongo && cfg.Files.CleanupInterval <= 0 {
		return fmt.Errorf("過期清理間隔必須大於 0")
	}

	// 驗證儲存後端配置
	switch cfg.KeyStorage.Type {
	case KeyStorageMemory:
	case KeyStorageFiles:
		if cfg.Files.DataDirectory == "" {
			return fmt.Errorf("檔案儲存目錄不能為空")
		}
	case KeyStorageMongo:
		if cfg.Database.Mongo.URL == "" {
			return fmt.Errorf("MongoDB URL 不能為空")
		}
		if cfg.Database.Mongo.Database == "" {
			return fmt.Errorf("MongoDB 資料庫名稱不能為空")
		}
		if cfg.Database.Mongo.Collection == "" {
			return fmt.Errorf("MongoDB 集合名稱不能為空")
		}
		if cfg.Database.Mongo.MaxPoolSize == 0 {
			return fmt.Errorf("MongoDB 最大連接池大小必須大於 0")
		}
		if cfg.Database.Mongo.MinPoolSize > cfg.Database.Mongo.MaxPoolSize {
			return fmt.Errorf("MongoDB 最小連接池大小不能大於最大連接池大小")
		}
	default:
		return fmt.Errorf("unsupported key storage type: %s", cfg.KeyStorage.Type)
	}

	if cfg.DataProtection.Enabled {
		if cfg.DataProtection.ApplicationName == "" {
			return fmt.Errorf("資料保護應用名稱不能為空")
		}
		if cfg.DataProtection.KeyLifetime <= 0 {
			return fmt.Errorf("資料保護密鑰有效期必須大於 0")
		}
	}

	if cfg.Security.TLS.Enabled && (cfg.Security.TLS.CertFile == "" || cfg.Security.TLS.KeyFile == "") {
		return fmt.Errorf("啟用 TLS 時必須提供憑證與私鑰")
	}

	if cfg.Limits.MaxBodySize <= 0 {
		return fmt.Errorf("請求體大小限制必須大於 0")
	}
	if cfg.Limits.MaxKeyLength <= 0 {
		return fmt.Errorf("密鑰長度限制必須大於 0")
	}

	// 驗證日誌配置
	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	return nil
}

// IsDebug 檢查是否為除錯模式
func IsDebug() bool {
	if config != nil {
		return config.App.Debug
	}
	return false
}

// GetServerAddr 取得伺服器監聽地址，IPv6 主機會加上方括號
func (s ServerConfig) GetServerAddr() string {
	return net.JoinHostPort(s.Host, s.Port)
}
