package keymanager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"secure-pastebox/internal/security/encryption"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ringClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *ringClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ringClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRingClock() *ringClock {
	return &ringClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// failingRepository 保存永遠失敗
type failingRepository struct{ MemoryRepository }

func (f *failingRepository) Save(context.Context, []byte) error { return errors.New("read-only") }

func TestKeyRing_CreatesInitialKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	ring, err := NewKeyRing(ctx, repo, Options{})
	require.NoError(t, err)

	version, key, err := ring.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), version)
	assert.Len(t, key, 32)

	data, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestKeyRing_RotatesAfterLifetime(t *testing.T) {
	ctx := context.Background()
	clock := newRingClock()
	ring, err := NewKeyRing(ctx, NewMemoryRepository(), Options{Lifetime: 90 * 24 * time.Hour, Clock: clock.Now})
	require.NoError(t, err)

	v1, k1, err := ring.ActiveKey(ctx)
	require.NoError(t, err)

	clock.Advance(89 * 24 * time.Hour)
	v, _, err := ring.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v)

	clock.Advance(24 * time.Hour)
	v2, k2, err := ring.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1+1, v2)
	assert.NotEqual(t, k1, k2)

	// 舊版本仍可用於解除保護
	old, err := ring.KeyByVersion(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, k1, old)

	stats := ring.Stats()
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 1, stats.ArchivedKeys)
	assert.Equal(t, v2, stats.ActiveVersion)
}

func TestKeyRing_ReloadsFromSharedRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(filepath.Join(t.TempDir(), ".keyring.json"))

	first, err := NewKeyRing(ctx, repo, Options{})
	require.NoError(t, err)
	second, err := NewKeyRing(ctx, repo, Options{})
	require.NoError(t, err)

	// 兩個實例共用同一把活躍密鑰
	v1, k1, err := first.ActiveKey(ctx)
	require.NoError(t, err)
	v2, k2, err := second.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, k1, k2)

	// 另一個實例輪換後，未知版本會觸發重新載入
	info, err := first.ForceRotate(ctx)
	require.NoError(t, err)
	rotated, err := second.KeyByVersion(ctx, info.Version)
	require.NoError(t, err)
	assert.Len(t, rotated, 32)

	_, err = second.KeyByVersion(ctx, 99)
	assert.ErrorIs(t, err, encryption.ErrUnknownKeyVersion)
}

func TestKeyRing_WrapsWithMasterKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	master := make([]byte, 32)
	for i := range master {
		master[i] = byte(i)
	}

	ring, err := NewKeyRing(ctx, repo, Options{MasterKey: master})
	require.NoError(t, err)
	_, key, err := ring.ActiveKey(ctx)
	require.NoError(t, err)
	assert.True(t, ring.Stats().Wrapped)

	data, err := repo.Load(ctx)
	require.NoError(t, err)
	var doc ringDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Keys, 1)
	assert.True(t, doc.Keys[0].Wrapped)
	assert.NotEqual(t, key, doc.Keys[0].Value)

	// 重新載入需要相同主密鑰
	reloaded, err := NewKeyRing(ctx, repo, Options{MasterKey: master})
	require.NoError(t, err)
	_, same, err := reloaded.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, same)

	_, err = NewKeyRing(ctx, repo, Options{})
	assert.ErrorIs(t, err, ErrMasterKeyRequired)

	wrong := make([]byte, 32)
	_, err = NewKeyRing(ctx, repo, Options{MasterKey: wrong})
	assert.ErrorIs(t, err, encryption.ErrDecrypt)
}

func TestKeyRing_PersistFailureIsReported(t *testing.T) {
	_, err := NewKeyRing(context.Background(), &failingRepository{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key persistence error")
}

func TestKeyRing_WithProtector(t *testing.T) {
	ctx := context.Background()
	clock := newRingClock()
	ring, err := NewKeyRing(ctx, NewMemoryRepository(), Options{Lifetime: time.Hour, Clock: clock.Now})
	require.NoError(t, err)

	p := encryption.NewProtector(ring, "SecurePasteBox")
	protected, err := p.Protect(ctx, "AbCd1234", []byte("secret"))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = p.Protect(ctx, "Other123", []byte("after rotation"))
	require.NoError(t, err)

	plaintext, err := p.Unprotect(ctx, "AbCd1234", protected)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))
}

func TestLoadMasterKey(t *testing.T) {
	key, err := LoadMasterKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	valid := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	key, err = LoadMasterKey(valid)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = LoadMasterKey("not base64!")
	assert.Error(t, err)

	_, err = LoadMasterKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
