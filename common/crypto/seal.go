// Package crypto implements the symmetric credential sealer used to store
// integration credentials at rest: seal(map) -> bytes, unseal(bytes) -> map.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer seals and unseals credential maps with a single process-wide key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from keyMaterial (padding with zero bytes
// or truncating, matching the original credential store's key derivation)
// and builds a ChaCha20-Poly1305 AEAD sealer.
func NewSealer(keyMaterial string) (*Sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	copy(key, keyMaterial)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("build aead: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encodes creds as canonical JSON and encrypts it, prefixing the
// ciphertext with a random nonce.
func (s *Sealer) Seal(creds map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

// Unseal reverses Seal, returning the original credential map.
func (s *Sealer) Unseal(sealed []byte) (map[string]any, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed credentials too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	var creds map[string]any
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}

	return creds, nil
}
