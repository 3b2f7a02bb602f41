package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sealer encrypts and authenticates small payloads.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// New returns an AES-GCM sealer for hexKey, or Noop when hexKey is empty.
func New(hexKey string) (Sealer, error) {
	if hexKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, tokens are stored unencrypted")
		return Noop{}, nil
	}
	return NewAESGCM(hexKey)
}

// Noop passes payloads through unchanged (dev/test mode).
type Noop struct{}

func (Noop) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (Noop) Open(sealed []byte) ([]byte, error)    { return sealed, nil }

type AESGCM struct {
	gcm cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM sealer from a 64 character hex key.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{gcm: gcm}, nil
}

// Seal returns nonce || ciphertext || tag.
func (c *AESGCM) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AESGCM) Open(sealed []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
