package keymanager

import "time"

// Key 版本化的主密鑰
type Key struct {
	Version   uint32    // 密鑰版本，從 1 開始遞增
	Value     []byte    // 256-bit 密鑰值
	CreatedAt time.Time // 創建時間
	ExpiresAt time.Time // 超過此時間不再用於保護新資料
	Status    KeyStatus // 密鑰狀態
}

// KeyStatus 密鑰狀態
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"   // 活躍（用於保護）
	KeyStatusArchived KeyStatus = "archived" // 歸檔（只用於解除保護）
)

// KeyInfo 密鑰信息（不包含密鑰值）
type KeyInfo struct {
	Version   uint32        `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Status    KeyStatus     `json:"status"`
	Age       time.Duration `json:"age"`
}

// KeyManagerStats 密鑰環統計信息
type KeyManagerStats struct {
	TotalKeys     int    `json:"totalKeys"`
	ActiveVersion uint32 `json:"activeVersion"`
	ArchivedKeys  int    `json:"archivedKeys"`
	Wrapped       bool   `json:"wrapped"`
	Repository    string `json:"repository"`
}

// ringDocument 持久化格式，整個密鑰環存為單一 JSON
type ringDocument struct {
	Active uint32      `json:"active"`
	Keys   []storedKey `json:"keys"`
}

type storedKey struct {
	Version   uint32    `json:"version"`
	Value     []byte    `json:"value"`
	Wrapped   bool      `json:"wrapped"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Status    KeyStatus `json:"status"`
}
