package encryption

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	envelopeFormat byte = 0x01
	envelopeHeader      = 1 + 4 // format + key version
)

// ErrUnknownKeyVersion 受保護值引用了不存在的主密鑰版本
var ErrUnknownKeyVersion = errors.New("unknown protection key version")

// KeyProvider 提供版本化的主密鑰
type KeyProvider interface {
	// ActiveKey 目前用於保護的主密鑰
	ActiveKey(ctx context.Context) (version uint32, key []byte, err error)
	// KeyByVersion 依版本取得主密鑰，找不到時返回 ErrUnknownKeyVersion
	KeyByVersion(ctx context.Context, version uint32) ([]byte, error)
}

// Protector 以 purpose 區隔的靜態資料保護
// 每個 purpose 使用 HKDF-SHA256 衍生的子密鑰，並以 purpose 作為 AES-GCM 附加資料
// 封包格式: 0x01 | key version (uint32 BE) | nonce | ciphertext + tag
type Protector struct {
	keys            KeyProvider
	applicationName string
}

// NewProtector 創建保護服務
func NewProtector(keys KeyProvider, applicationName string) *Protector {
	return &Protector{keys: keys, applicationName: applicationName}
}

// Protect 保護明文，ctx 傳遞到主密鑰的載入與輪換
func (p *Protector) Protect(ctx context.Context, purpose string, plaintext []byte) ([]byte, error) {
	version, master, err := p.keys.ActiveKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active key: %w", err)
	}

	aead, err := p.subkeyCipher(master, purpose)
	if err != nil {
		return nil, err
	}

	sealed, err := aead.Seal(plaintext, []byte(purpose))
	if err != nil {
		return nil, err
	}

	out := make([]byte, envelopeHeader, envelopeHeader+len(sealed))
	out[0] = envelopeFormat
	binary.BigEndian.PutUint32(out[1:envelopeHeader], version)
	return append(out, sealed...), nil
}

// Unprotect 還原明文，purpose 必須與保護時相同
func (p *Protector) Unprotect(ctx context.Context, purpose string, protected []byte) ([]byte, error) {
	if len(protected) < envelopeHeader || protected[0] != envelopeFormat {
		return nil, fmt.Errorf("%w: unrecognized envelope", ErrDecrypt)
	}

	version := binary.BigEndian.Uint32(protected[1:envelopeHeader])
	master, err := p.keys.KeyByVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	aead, err := p.subkeyCipher(master, purpose)
	if err != nil {
		return nil, err
	}
	return aead.Open(protected[envelopeHeader:], []byte(purpose))
}

func (p *Protector) subkeyCipher(master []byte, purpose string) (*AESGCM, error) {
	info := make([]byte, 0, len(p.applicationName)+1+len(purpose))
	info = append(info, p.applicationName...)
	info = append(info, 0)
	info = append(info, purpose...)

	subkey := make([]byte, 32)
	defer zero(subkey)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), subkey); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return NewAESGCM(subkey)
}
