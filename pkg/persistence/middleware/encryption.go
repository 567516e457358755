package middleware

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/moments/pkg/ports"
)

// encryptedPrefix marks values sealed by this middleware.
const encryptedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// NewEncryptionMiddleware creates a middleware that encrypts every value using AES-GCM.
// Keys stay in clear text so prefix listing keeps working.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.Storage) ports.Storage {
		return &valueStore{
			next: next,
			encode: func(v string) (string, error) {
				ciphertext, err := encrypt([]byte(v), config.ActiveKey)
				if err != nil {
					return "", fmt.Errorf("failed to encrypt value: %w", err)
				}
				return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
			},
			decode: func(v string) (string, error) {
				// Fail secure: with encryption configured, plain values are rejected.
				if !strings.HasPrefix(v, encryptedPrefix) {
					return "", errors.New("value is missing encryption envelope")
				}
				ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, encryptedPrefix))
				if err != nil {
					return "", fmt.Errorf("failed to decode ciphertext base64: %w", err)
				}
				plain, err := decryptWithRotation(ciphertext, config.ActiveKey, config.FallbackKeys)
				if err != nil {
					return "", fmt.Errorf("failed to decrypt value: %w", err)
				}
				return string(plain), nil
			},
		}
	}
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
