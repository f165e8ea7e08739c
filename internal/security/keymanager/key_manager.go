package keymanager

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/security/audit"
	"secure-pastebox/internal/security/encryption"
)

// ErrMasterKeyRequired 持久化的密鑰被包裝，但未提供主密鑰
var ErrMasterKeyRequired = errors.New("keyring entries are wrapped but no master key is configured")

// Options 密鑰環設定
type Options struct {
	Lifetime  time.Duration    // 活躍密鑰的使用期限
	MasterKey []byte           // 包裝持久化密鑰用，nil 表示以原始形式保存
	Clock     func() time.Time // 測試用
	Audit     *audit.AuditService
}

// KeyRing 版本化主密鑰環，整體透過 Repository 持久化
type KeyRing struct {
	mu     sync.RWMutex
	keys   map[uint32]*Key
	active uint32

	repo     Repository
	wrapper  *encryption.AESGCM
	lifetime time.Duration
	clock    func() time.Time
	audit    *audit.AuditService
}

// NewKeyRing 載入密鑰環，沒有可用密鑰時建立第一把
func NewKeyRing(ctx context.Context, repo Repository, opts Options) (*KeyRing, error) {
	ring := &KeyRing{
		keys:     make(map[uint32]*Key),
		repo:     repo,
		lifetime: opts.Lifetime,
		clock:    opts.Clock,
		audit:    opts.Audit,
	}
	if ring.lifetime <= 0 {
		ring.lifetime = constants.DefaultKeyLifetime
	}
	if ring.clock == nil {
		ring.clock = time.Now
	}

	if opts.MasterKey != nil {
		wrapper, err := encryption.NewAESGCM(opts.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("invalid master key: %w", err)
		}
		ring.wrapper = wrapper
	} else {
		logger.Warning(ctx, "未設定 MASTER_KEY，保護密鑰將以未包裝形式保存",
			logger.WithLabels(map[string]string{"repository": repo.Name()}))
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.reloadLocked(ctx); err != nil {
		return nil, err
	}
	if !ring.activeUsableLocked() {
		if _, err := ring.rotateLocked(ctx, "initial"); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// ActiveKey 返回目前活躍的主密鑰，過期時自動輪換
func (r *KeyRing) ActiveKey(ctx context.Context) (uint32, []byte, error) {
	r.mu.RLock()
	if r.activeUsableLocked() {
		key := r.keys[r.active]
		r.mu.RUnlock()
		return key.Version, copyBytes(key.Value), nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 其他實例可能已經輪換
	if err := r.reloadLocked(ctx); err != nil {
		return 0, nil, err
	}
	if !r.activeUsableLocked() {
		if _, err := r.rotateLocked(ctx, "expired"); err != nil {
			return 0, nil, err
		}
	}
	key := r.keys[r.active]
	return key.Version, copyBytes(key.Value), nil
}

// KeyByVersion 依版本取得主密鑰，找不到時重新載入一次
func (r *KeyRing) KeyByVersion(ctx context.Context, version uint32) ([]byte, error) {
	r.mu.RLock()
	key, ok := r.keys[version]
	r.mu.RUnlock()
	if ok {
		return copyBytes(key.Value), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.keys[version]; ok {
		return copyBytes(key.Value), nil
	}
	if err := r.reloadLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := r.keys[version]; ok {
		return copyBytes(key.Value), nil
	}
	return nil, fmt.Errorf("%w: %d", encryption.ErrUnknownKeyVersion, version)
}

// ForceRotate 立即輪換活躍密鑰
func (r *KeyRing) ForceRotate(ctx context.Context) (KeyInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reloadLocked(ctx); err != nil {
		return KeyInfo{}, err
	}
	key, err := r.rotateLocked(ctx, "forced")
	if err != nil {
		return KeyInfo{}, err
	}
	return r.infoLocked(key), nil
}

// RunRotation 定期檢查活躍密鑰是否到期，直到 ctx 取消
func (r *KeyRing) RunRotation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := r.ActiveKey(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "密鑰輪換檢查失敗", logger.WithError(err))
			}
		}
	}
}

// Infos 返回所有密鑰資訊，依版本排序
func (r *KeyRing) Infos() []KeyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]KeyInfo, 0, len(r.keys))
	for _, key := range r.keys {
		infos = append(infos, r.infoLocked(key))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Version < infos[j].Version })
	return infos
}

// Stats 獲取統計信息
func (r *KeyRing) Stats() KeyManagerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := KeyManagerStats{
		TotalKeys:     len(r.keys),
		ActiveVersion: r.active,
		Wrapped:       r.wrapper != nil,
		Repository:    r.repo.Name(),
	}
	for _, key := range r.keys {
		if key.Status == KeyStatusArchived {
			stats.ArchivedKeys++
		}
	}
	return stats
}

func (r *KeyRing) activeUsableLocked() bool {
	key, ok := r.keys[r.active]
	return ok && r.clock().Before(key.ExpiresAt)
}

func (r *KeyRing) infoLocked(key *Key) KeyInfo {
	return KeyInfo{
		Version:   key.Version,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
		Status:    key.Status,
		Age:       r.clock().Sub(key.CreatedAt),
	}
}

// rotateLocked 產生新版本並持久化，調用者必須持有寫鎖
func (r *KeyRing) rotateLocked(ctx context.Context, reason string) (*Key, error) {
	value := make([]byte, constants.MasterKeyLength)
	if _, err := rand.Read(value); err != nil {
		return nil, fmt.Errorf("key generation error: %w", err)
	}

	var next uint32 = 1
	for version := range r.keys {
		if version >= next {
			next = version + 1
		}
	}

	now := r.clock()
	key := &Key{
		Version:   next,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(r.lifetime),
		Status:    KeyStatusActive,
	}

	previous := r.active
	if old, ok := r.keys[previous]; ok {
		old.Status = KeyStatusArchived
	}
	r.keys[next] = key
	r.active = next

	if err := r.persistLocked(ctx); err != nil {
		// 持久化失敗時回復，避免使用無法在重啟後還原的密鑰
		delete(r.keys, next)
		r.active = previous
		if old, ok := r.keys[previous]; ok {
			old.Status = KeyStatusActive
		}
		return nil, err
	}

	logger.Info(ctx, "保護密鑰已輪換",
		logger.WithAction("rotate_protection_key"),
		logger.WithDetails(map[string]interface{}{
			"version":    next,
			"reason":     reason,
			"expires_at": key.ExpiresAt.UTC().Format(time.RFC3339),
		}))
	r.audit.LogSecurityEvent(ctx, "rotate_protection_key", "protection key rotated", "info",
		map[string]interface{}{"version": next, "reason": reason})
	return key, nil
}

func (r *KeyRing) persistLocked(ctx context.Context) error {
	doc := ringDocument{Active: r.active, Keys: make([]storedKey, 0, len(r.keys))}
	for _, key := range r.keys {
		stored := storedKey{
			Version:   key.Version,
			Value:     key.Value,
			CreatedAt: key.CreatedAt.UTC(),
			ExpiresAt: key.ExpiresAt.UTC(),
			Status:    key.Status,
		}
		if r.wrapper != nil {
			wrapped, err := r.wrapper.Seal(key.Value, wrapAAD(key.Version))
			if err != nil {
				return fmt.Errorf("key encryption error: %w", err)
			}
			stored.Value = wrapped
			stored.Wrapped = true
		}
		doc.Keys = append(doc.Keys, stored)
	}
	sort.Slice(doc.Keys, func(i, j int) bool { return doc.Keys[i].Version < doc.Keys[j].Version })

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode keyring: %w", err)
	}
	if err := r.repo.Save(ctx, data); err != nil {
		return fmt.Errorf("key persistence error: %w", err)
	}
	return nil
}

// reloadLocked 以儲存庫內容取代快取，調用者必須持有寫鎖
func (r *KeyRing) reloadLocked(ctx context.Context) error {
	data, err := r.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("key loading error: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc ringDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode keyring: %w", err)
	}

	keys := make(map[uint32]*Key, len(doc.Keys))
	for _, stored := range doc.Keys {
		value := stored.Value
		if stored.Wrapped {
			if r.wrapper == nil {
				return ErrMasterKeyRequired
			}
			value, err = r.wrapper.Open(stored.Value, wrapAAD(stored.Version))
			if err != nil {
				return fmt.Errorf("key decryption error (version %d): %w", stored.Version, err)
			}
		}
		if len(value) != constants.MasterKeyLength {
			return fmt.Errorf("keyring entry %d has invalid length", stored.Version)
		}
		keys[stored.Version] = &Key{
			Version:   stored.Version,
			Value:     value,
			CreatedAt: stored.CreatedAt,
			ExpiresAt: stored.ExpiresAt,
			Status:    stored.Status,
		}
	}

	r.keys = keys
	r.active = doc.Active
	return nil
}

// LoadMasterKey 解析 base64 編碼的 32 bytes 主密鑰，空字串返回 nil
func LoadMasterKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", err)
	}
	if len(key) != constants.MasterKeyLength {
		return nil, fmt.Errorf("master key must be %d bytes (256 bits), got %d", constants.MasterKeyLength, len(key))
	}
	return key, nil
}

func wrapAAD(version uint32) []byte {
	return []byte("keyring:" + strconv.FormatUint(uint64(version), 10))
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
