// Package crypto seals tenant credentials (gateway secrets, shipping tokens)
// before they are written to the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMissingKey         = errors.New("encryption key is required")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrUnknownVersion     = errors.New("unknown ciphertext version")
)

// versionPrefix tags every sealed value so the key can be rotated later.
const versionPrefix = "v1."

// Encryptor seals values for a scope, usually a tenant id. A value sealed for
// one scope cannot be opened under another, so a secret copied between tenant
// rows fails to decrypt.
type Encryptor interface {
	Seal(scope, plaintext string) (string, error)
	Open(scope, sealed string) (string, error)
}

type aesGCMEncryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an AES-256-GCM encryptor from a 32-byte key.
func NewEncryptor(key string) (Encryptor, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMEncryptor{aead: aead}, nil
}

func (e *aesGCMEncryptor) Seal(scope, plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(scope))
	return versionPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *aesGCMEncryptor) Open(scope, sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, versionPrefix)
	if !ok {
		return "", ErrUnknownVersion
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, []byte(scope))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// OpenOptional opens sealed unless it is empty, which means the value was never
// configured.
func OpenOptional(e Encryptor, scope, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	return e.Open(scope, sealed)
}
