package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt is returned when a stored secret cannot be decrypted
// (wrong key or corrupted ciphertext). The sync path treats it as fatal.
var ErrDecrypt = errors.New("failed to decrypt stored secret")

// SecretBox encrypts and decrypts API credentials at rest with
// AES-256-GCM. The key is the base64 url-safe encoding of 32 random bytes.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox builds a SecretBox from the configured encryption key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	key, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SecretBox{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (sb *SecretBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, sb.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := sb.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Returns ErrDecrypt on any failure so callers
// can distinguish credential problems from transient errors.
func (sb *SecretBox) Decrypt(encoded string) (string, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(sealed) < sb.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ciphertext := sealed[:sb.aead.NonceSize()], sealed[sb.aead.NonceSize():]
	plaintext, err := sb.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
