// Package keys 實作一次性密鑰的保存與取回.
package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/security/audit"
	"secure-pastebox/internal/storage/keystore"

	"go.uber.org/atomic"
)

var (
	ErrEmptyKey          = errors.New("key must not be empty")
	ErrKeyTooLong        = errors.New("key is too long")
	ErrInvalidExpiration = errors.New("invalid expiration")
	// ErrStorage 後端失敗，對外只回報通用訊息.
	ErrStorage = errors.New("key storage failure")
)

// Protector 靜態保護服務，purpose 為識別碼.
type Protector interface {
	Protect(ctx context.Context, purpose string, plaintext []byte) ([]byte, error)
	Unprotect(ctx context.Context, purpose string, protected []byte) ([]byte, error)
}

// NopProtector 不做任何保護，用於停用資料保護時.
type NopProtector struct{}

func (NopProtector) Protect(_ context.Context, _ string, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopProtector) Unprotect(_ context.Context, _ string, protected []byte) ([]byte, error) {
	return protected, nil
}

// Options 保管者設定.
type Options struct {
	DefaultExpiration time.Duration
	MaxExpiration     time.Duration // 0 表示不限制
	MaxKeyLength      int           // 0 表示不限制
	Clock             func() time.Time
	GenerateID        func() (string, error)
	Audit             *audit.AuditService
}

// Stats 保管者統計.
type Stats struct {
	Saved     int64 `json:"saved"`
	Retrieved int64 `json:"retrieved"`
	Missed    int64 `json:"missed"`
	Failures  int64 `json:"failures"`
}

// Custodian 保存密鑰並保證最多被取回一次.
type Custodian struct {
	store     keystore.Store
	protector Protector
	opts      Options

	saved     atomic.Int64
	retrieved atomic.Int64
	missed    atomic.Int64
	failures  atomic.Int64
}

// NewCustodian 創建保管者.
func NewCustodian(store keystore.Store, protector Protector, opts Options) *Custodian {
	if protector == nil {
		protector = NopProtector{}
	}
	if opts.DefaultExpiration <= 0 {
		opts.DefaultExpiration = constants.DefaultExpiration
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.GenerateID == nil {
		opts.GenerateID = GenerateID
	}
	return &Custodian{
		store:     store,
		protector: protector,
		opts:      opts,
	}
}

// Store 底層儲存後端.
func (c *Custodian) Store() keystore.Store {
	return c.store
}

// SaveKey 保存密鑰並返回新識別碼.
func (c *Custodian) SaveKey(ctx context.Context, value string, exp Expiration) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", ErrEmptyKey
	}
	if c.opts.MaxKeyLength > 0 && utf8.RuneCountInString(value) > c.opts.MaxKeyLength {
		return "", ErrKeyTooLong
	}

	expiresAt, err := c.resolveExpiry(exp)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= constants.MaxSaveAttempts; attempt++ {
		id, err := c.opts.GenerateID()
		if err != nil {
			// 隨機來源失效時無法安全地發出識別碼
			panic(fmt.Sprintf("key id generation failed: %v", err))
		}

		protected, err := c.protector.Protect(ctx, id, []byte(value))
		if err != nil {
			return "", c.fail(ctx, id, "protect", err)
		}

		err = c.store.Put(ctx, id, protected, expiresAt)
		if errors.Is(err, keystore.ErrKeyExists) {
			logger.Warning(ctx, "識別碼碰撞，重新產生",
				logger.WithKeyID(id),
				logger.WithBackend(c.store.Name()),
				logger.WithDetails(map[string]interface{}{"attempt": attempt}))
			continue
		}
		if err != nil {
			return "", c.fail(ctx, id, "save", err)
		}

		c.saved.Inc()
		c.opts.Audit.LogKeySaved(ctx, id, expiresAt)
		logger.Info(ctx, "密鑰已保存",
			logger.WithKeyID(id),
			logger.WithBackend(c.store.Name()),
			logger.WithAction("save_key"))
		return id, nil
	}

	return "", c.fail(ctx, "", "save", fmt.Errorf("no free id after %d attempts", constants.MaxSaveAttempts))
}

// GetAndDeleteKey 取回並刪除密鑰.
// 不存在、已取回、已過期、格式錯誤或無法解除保護的識別碼一律回報不存在.
func (c *Custodian) GetAndDeleteKey(ctx context.Context, id string) (string, bool, error) {
	if !ValidID(id) {
		c.miss(ctx, id, "malformed_id")
		return "", false, nil
	}

	protected, found, err := c.store.TakeAndRemove(ctx, id)
	if err != nil {
		return "", false, c.fail(ctx, id, "take", err)
	}
	if !found {
		c.miss(ctx, id, "not_found")
		return "", false, nil
	}

	plaintext, err := c.protector.Unprotect(ctx, id, protected)
	if err != nil {
		logger.Warning(ctx, "無法解除密鑰保護，視為不存在",
			logger.WithKeyID(id),
			logger.WithBackend(c.store.Name()),
			logger.WithError(err))
		c.miss(ctx, id, "unprotect_failed")
		return "", false, nil
	}

	c.retrieved.Inc()
	c.opts.Audit.LogKeyRetrieved(ctx, id)
	logger.Info(ctx, "密鑰已取回並刪除",
		logger.WithKeyID(id),
		logger.WithBackend(c.store.Name()),
		logger.WithAction("get_and_delete_key"))
	return string(plaintext), true, nil
}

// Stats 返回目前統計.
func (c *Custodian) Stats() Stats {
	return Stats{
		Saved:     c.saved.Load(),
		Retrieved: c.retrieved.Load(),
		Missed:    c.missed.Load(),
		Failures:  c.failures.Load(),
	}
}

func (c *Custodian) resolveExpiry(exp Expiration) (*time.Time, error) {
	now := c.opts.Clock()
	switch {
	case exp.IsNever():
		return nil, nil
	case exp.IsDefault():
		t := now.Add(c.opts.DefaultExpiration)
		return &t, nil
	}

	d, _ := exp.Duration()
	if d <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidExpiration)
	}
	if c.opts.MaxExpiration > 0 && d > c.opts.MaxExpiration {
		return nil, fmt.Errorf("%w: exceeds maximum of %s", ErrInvalidExpiration, c.opts.MaxExpiration)
	}
	t := now.Add(d)
	return &t, nil
}

func (c *Custodian) miss(ctx context.Context, id, reason string) {
	c.missed.Inc()
	c.opts.Audit.LogKeyMissed(ctx, id, reason)
}

func (c *Custodian) fail(ctx context.Context, id, action string, err error) error {
	c.failures.Inc()
	logger.Error(ctx, "密鑰儲存操作失敗",
		logger.WithKeyID(id),
		logger.WithBackend(c.store.Name()),
		logger.WithAction(action),
		logger.WithError(err))
	return fmt.Errorf("%w: %s: %w", ErrStorage, action, err)
}
