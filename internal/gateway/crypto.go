package gateway

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/credvault/credvault/pkg/crypto"
)

const defaultSaltLength = 16

// Crypto provides the sealing helpers for gateway ciphertext payloads and
// proof tags. Two keys are derived from the master key: an AES-256-GCM key
// for payloads and an HMAC key binding proofs to this gateway instance.
type Crypto struct {
	sealKey  []byte
	proofKey []byte
	salt     []byte
	params   crypto.Argon2Parameters
}

type cryptoConfig struct {
	params crypto.Argon2Parameters
	salt   []byte
}

// CryptoOption configures the gateway crypto helper.
type CryptoOption func(*cryptoConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) CryptoOption {
	cp := make([]byte, len(salt))
	copy(cp, salt)
	return func(cfg *cryptoConfig) {
		cfg.salt = cp
	}
}

// WithArgon2Parameters overrides the Argon2 parameters used during key derivation.
func WithArgon2Parameters(params crypto.Argon2Parameters) CryptoOption {
	return func(cfg *cryptoConfig) {
		cfg.params = params
	}
}

// NewCrypto derives the gateway keys from the provided master key using Argon2id.
func NewCrypto(masterKey []byte, opts ...CryptoOption) (*Crypto, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("gateway crypto: master key is required")
	}

	cfg := cryptoConfig{
		params: crypto.DefaultArgon2Params(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		cfg.salt = deriveSalt(masterKey)
	} else if len(cfg.salt) < defaultSaltLength {
		return nil, fmt.Errorf("gateway crypto: salt must be at least %d bytes (got %d)", defaultSaltLength, len(cfg.salt))
	}

	derived, err := crypto.DeriveKeyArgon2id(masterKey, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("gateway crypto: derive key: %w", err)
	}

	proofKey := sha256.Sum256(append(append([]byte(nil), derived...), []byte("proof-binding")...))

	return &Crypto{
		sealKey:  derived,
		proofKey: proofKey[:],
		salt:     append([]byte(nil), cfg.salt...),
		params:   cfg.params,
	}, nil
}

// Seal encrypts a plaintext payload with the derived AES-256-GCM key.
func (c *Crypto) Seal(plaintext []byte) (string, error) {
	if len(c.sealKey) == 0 {
		return "", errors.New("gateway crypto: key is not initialised")
	}
	return crypto.Encrypt(plaintext, c.sealKey)
}

// Open decrypts a sealed payload using the derived AES-256-GCM key.
func (c *Crypto) Open(ciphertext string) ([]byte, error) {
	if len(c.sealKey) == 0 {
		return nil, errors.New("gateway crypto: key is not initialised")
	}
	return crypto.Decrypt(ciphertext, c.sealKey)
}

// ProveBinding computes the proof tag over the binding message.
func (c *Crypto) ProveBinding(message []byte) string {
	return crypto.ComputeHMAC(message, c.proofKey)
}

// VerifyBinding checks a proof tag against the binding message.
func (c *Crypto) VerifyBinding(message []byte, proof string) bool {
	return crypto.VerifyHMAC(message, proof, c.proofKey)
}

func deriveSalt(masterKey []byte) []byte {
	sum := sha256.Sum256(masterKey)
	return sum[:defaultSaltLength]
}
