package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2 parameters
	DefaultIterations = 100000

	// Scrypt parameters
	ScryptN      = 32768 // CPU/memory cost parameter
	ScryptR      = 8     // block size parameter
	ScryptP      = 1     // parallelization parameter
	ScryptKeyLen = 32    // derived key length
)

// Errors
var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrInvalidKey        = errors.New("invalid key size")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidEnvelope   = errors.New("malformed envelope")
	ErrInvalidPlaintext  = errors.New("plaintext is not valid UTF-8 JSON")
)

// CryptoProvider handles all cryptographic operations.
type CryptoProvider struct{}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &CryptoProvider{}
}

// DeriveKey derives the document key. The result is deterministic for a given
// (secret, salt, iterations) triple.
func (p *CryptoProvider) DeriveKey(secret string, info models.EncryptionInfo) ([]byte, error) {
	salt, err := decodeBase64(info.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}

	if len(salt) == 0 {
		return nil, errors.New("empty salt")
	}

	switch info.Algorithm() {
	case models.KDFPBKDF2:
		if info.Iterations <= 0 {
			return nil, fmt.Errorf("invalid iteration count: %d", info.Iterations)
		}
		return pbkdf2.Key([]byte(secret), salt, info.Iterations, KeySize, sha256.New), nil

	case models.KDFScrypt:
		key, err := scrypt.Key([]byte(secret), salt, ScryptN, ScryptR, ScryptP, ScryptKeyLen)
		if err != nil {
			return nil, fmt.Errorf("scrypt key derivation: %w", err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("unsupported key derivation function: %s", info.KDF)
	}
}

// DecryptData decrypts ciphertext using AES-GCM.
func (p *CryptoProvider) DecryptData(ciphertext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	// Minimum size: nonce + tag
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	nonce := ciphertext[:NonceSize]
	ciphertextWithTag := ciphertext[NonceSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertextWithTag, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// DecryptEnvelope decodes the envelope's base64 payload, authenticates and
// decrypts it, and parses the plaintext as JSON.
func (p *CryptoProvider) DecryptEnvelope(env models.Envelope, key []byte) (models.Value, error) {
	if env.Data == "" {
		return nil, ErrInvalidEnvelope
	}

	raw, err := decodeBase64(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	plaintext, err := p.DecryptData(raw, key)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(plaintext) {
		return nil, ErrInvalidPlaintext
	}

	value, err := models.ParseValue(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlaintext, err)
	}

	return value, nil
}

// decodeBase64 accepts padded and unpadded standard encoding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
