package crypto

import "github.com/TheMichaelB/metricsnap/internal/models"

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey derives a document key from a secret and the snapshot's
	// encryption metadata.
	DeriveKey(secret string, info models.EncryptionInfo) ([]byte, error)

	// DecryptData decrypts nonce || ciphertext || tag using AES-GCM.
	DecryptData(ciphertext, key []byte) ([]byte, error)

	// DecryptEnvelope decrypts one envelope into its plaintext JSON value.
	DecryptEnvelope(env models.Envelope, key []byte) (models.Value, error)
}
