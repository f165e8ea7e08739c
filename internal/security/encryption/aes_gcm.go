package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt 密文無效或驗證失敗
var ErrDecrypt = errors.New("decryption failed")

// AESGCM AES-256-GCM 認證加密
// 輸出格式: nonce(12 bytes) + ciphertext + tag(16 bytes)
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM 創建 AES-256-GCM 加密實例
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{aead: aead}, nil
}

// Overhead 密文相對於明文增加的長度
func (e *AESGCM) Overhead() int {
	return e.aead.NonceSize() + e.aead.Overhead()
}

// Seal 加密並綁定附加資料 aad
func (e *AESGCM) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open 解密並驗證
func (e *AESGCM) Open(sealed, aad []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	plaintext, err := e.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// zero 使用完後清零敏感緩衝區
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
