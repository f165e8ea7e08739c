package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticKeys 固定版本的主密鑰，ctx 取消時與遠端儲存一樣失敗
type staticKeys struct {
	active uint32
	keys   map[uint32][]byte
}

func (s *staticKeys) ActiveKey(ctx context.Context) (uint32, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	return s.active, s.keys[s.active], nil
}

func (s *staticKeys) KeyByVersion(ctx context.Context, version uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := s.keys[version]
	if !ok {
		return nil, ErrUnknownKeyVersion
	}
	return key, nil
}

func TestProtector_RoundTrip(t *testing.T) {
	ctx := context.Background()
	keys := &staticKeys{active: 1, keys: map[uint32][]byte{1: newTestKey(t)}}
	p := NewProtector(keys, "SecurePasteBox")

	protected, err := p.Protect(ctx, "AbCd1234", []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), protected[0])
	assert.Equal(t, []byte{0, 0, 0, 1}, protected[1:5])
	assert.NotContains(t, string(protected), "hunter2")

	plaintext, err := p.Unprotect(ctx, "AbCd1234", protected)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestProtector_PurposeIsolation(t *testing.T) {
	ctx := context.Background()
	keys := &staticKeys{active: 1, keys: map[uint32][]byte{1: newTestKey(t)}}
	p := NewProtector(keys, "SecurePasteBox")

	protected, err := p.Protect(ctx, "AbCd1234", []byte("hunter2"))
	require.NoError(t, err)

	_, err = p.Unprotect(ctx, "Zz9Zz9Zz", protected)
	assert.ErrorIs(t, err, ErrDecrypt)

	// 應用程式名稱不同也無法解除保護
	_, err = NewProtector(keys, "OtherApp").Unprotect(ctx, "AbCd1234", protected)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestProtector_OldVersionsStillReadable(t *testing.T) {
	ctx := context.Background()
	keys := &staticKeys{active: 1, keys: map[uint32][]byte{1: newTestKey(t)}}
	p := NewProtector(keys, "SecurePasteBox")

	protected, err := p.Protect(ctx, "AbCd1234", []byte("before rotation"))
	require.NoError(t, err)

	keys.keys[2] = newTestKey(t)
	keys.active = 2

	plaintext, err := p.Unprotect(ctx, "AbCd1234", protected)
	require.NoError(t, err)
	assert.Equal(t, "before rotation", string(plaintext))

	delete(keys.keys, 1)
	_, err = p.Unprotect(ctx, "AbCd1234", protected)
	assert.ErrorIs(t, err, ErrUnknownKeyVersion)
}

func TestProtector_RejectsForeignEnvelope(t *testing.T) {
	ctx := context.Background()
	keys := &staticKeys{active: 1, keys: map[uint32][]byte{1: newTestKey(t)}}
	p := NewProtector(keys, "SecurePasteBox")

	for _, data := range [][]byte{nil, {0x01}, {0x02, 0, 0, 0, 1, 9, 9}, []byte("plain text")} {
		_, err := p.Unprotect(ctx, "AbCd1234", data)
		assert.Error(t, err)
	}
}

func TestProtector_HonorsContextCancellation(t *testing.T) {
	keys := &staticKeys{active: 1, keys: map[uint32][]byte{1: newTestKey(t)}}
	p := NewProtector(keys, "SecurePasteBox")

	protected, err := p.Protect(context.Background(), "AbCd1234", []byte("hunter2"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Protect(ctx, "AbCd1234", []byte("hunter2"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.Unprotect(ctx, "AbCd1234", protected)
	assert.ErrorIs(t, err, context.Canceled)
}
