package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// cookieKeyInfo scopes the derived key to cookie sealing
const cookieKeyInfo = "portal cookie encryption"

// ErrInvalidCiphertext is returned for cookies that fail to decrypt
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Sealer encrypts and authenticates small values with AES-256-GCM
// under a key derived from the application secret.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives an encryption key from secret
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("secret is required")
	}

	key, err := hkdf.Key(sha256.New, []byte(secret), nil, cookieKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns it base64url encoded
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal
func (s *Sealer) Open(sealed string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	if len(ciphertext) < s.gcm.NonceSize() {
		return nil, fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	nonce, ciphertext := ciphertext[:s.gcm.NonceSize()], ciphertext[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	return plaintext, nil
}

// GenerateRandomString creates a cryptographically secure random string
// of n bytes of entropy, base64url encoded.
func GenerateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
