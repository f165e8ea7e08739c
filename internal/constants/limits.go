package constants

import "time"

// 識別碼相關常數
const (
	// KeyIDAlphabet 識別碼字元集（62 個符號）
	KeyIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// KeyIDLength 識別碼長度（約 47.6 bits 熵）
	KeyIDLength = 8
	// MaxSaveAttempts 識別碼碰撞時的最大重試次數
	MaxSaveAttempts = 5
)

// 過期相關常數（可被配置覆蓋）
const (
	DefaultExpiration      = 7 * 24 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	// StaleInternalFileAge 暫存檔與認領檔超過此時間視為殘留
	StaleInternalFileAge = time.Hour
)

// Rate Limiting 默認值
const (
	DefaultRateLimitInterval = 5 * time.Second
	DefaultBucketIdleTTL     = 10 * time.Minute
)

// HTTP 請求相關常數
const (
	DefaultMaxRequestBodySize = 64 << 10 // 64KB
	DefaultMaxKeyLength       = 8192
	DefaultRequestTimeout     = 30 // 秒
)

// 檔案儲存相關常數
const (
	DefaultDataDirectory = "/data"
	KeyringFileName      = ".keyring.json"
)

// 資料保護相關常數
const (
	DefaultApplicationName = "SecurePasteBox"
	DefaultKeyringCacheKey = "DataProtection-Keys"
	DefaultKeyLifetime     = 90 * 24 * time.Hour
	MasterKeyLength        = 32 // 256 bits
)

// MongoDB 相關常數
const (
	DefaultMongoURL        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "securepastebox"
	DefaultMongoCollection = "keys"
	KeyringCollection      = "protection_keys"
)

// gRPC 健康檢查相關常數
const (
	HealthServiceName   = "keycustody"
	HealthCheckInterval = 10 * time.Second
)
