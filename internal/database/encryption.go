package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize        = 32 // AES-256
	nonceSize      = 12
	iterations     = 100000
	sealedPrefix   = "enc:v1:"
	secretEnvVar   = "WAE_ENCRYPTION_SECRET"
	minSecretLen   = 32
	derivationSalt = "waenhancer-settings-v1"
)

// sealer obfuscates single values at rest. A nil gcm passes values through.
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(enabled bool) (*sealer, error) {
	if !enabled {
		return &sealer{}, nil
	}

	secret := os.Getenv(secretEnvVar)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", secretEnvVar)
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", minSecretLen)
	}

	key := pbkdf2.Key([]byte(secret), []byte(derivationSalt), iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

func (s *sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" || s.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values stored before encryption was enabled come back as-is.
func (s *sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s.gcm == nil {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
