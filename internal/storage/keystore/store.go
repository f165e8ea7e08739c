// Package keystore 提供可替換的一次性密鑰儲存後端.
//
// 所有後端都保證：同一識別碼最多被取回一次，過期記錄視同不存在。
package keystore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrKeyExists 識別碼已被佔用（Put 只允許新建）.
	ErrKeyExists = errors.New("key already exists")
	// ErrInvalidID 識別碼不可作為儲存鍵.
	ErrInvalidID = errors.New("invalid key id")
	// ErrUnavailable 後端暫時不可用.
	ErrUnavailable = errors.New("key store unavailable")
)

// Store 密鑰儲存後端.
type Store interface {
	// Put 只新建記錄；expiresAt 為 nil 表示永不過期.
	Put(ctx context.Context, id string, value []byte, expiresAt *time.Time) error
	// TakeAndRemove 原子地讀取並刪除記錄，不存在或已過期時 found 為 false.
	TakeAndRemove(ctx context.Context, id string) (value []byte, found bool, err error)
	// Remove 刪除記錄，不存在時不視為錯誤.
	Remove(ctx context.Context, id string) error
	Available(ctx context.Context) bool
	Name() string
}

// Sweeper 可被定期清理的後端.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (removed int, err error)
}

// Clock 時間來源，測試時可替換.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// expired 判斷記錄在 now 是否已過期（到期時刻本身即視為過期）.
func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}

// validateID 拒絕空白識別碼與內部保留名稱.
func validateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.HasPrefix(id, ".") {
		return ErrInvalidID
	}
	return nil
}
