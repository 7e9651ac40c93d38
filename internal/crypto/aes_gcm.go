package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

// EncryptData encrypts plaintext using AES-GCM.
// Returns: nonce || ciphertext || tag
//
// Snapshots are encrypted by the producing backend; this exists to build
// fixtures and to check round trips.
func EncryptData(plaintext, key []byte) ([]byte, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// SealValue encrypts the JSON encoding of v into an envelope node.
func SealValue(v any, key []byte) (map[string]any, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	ciphertext, err := EncryptData(plaintext, key)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		models.KeyEncrypted: true,
		models.KeyData:      base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return nil
}
