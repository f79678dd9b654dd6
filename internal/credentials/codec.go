package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Codec serialises credentials for persisters, optionally sealing them with
// AES-256-GCM. A nil or keyless Codec stores plain JSON.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec returns a Codec. An empty key disables encryption.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return &Codec{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// KeyFromBase64 decodes a SESSION_ENCRYPTION_KEY value. Empty input yields a nil key.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d bytes", len(key))
	}
	return key, nil
}

// Encrypted reports whether values are sealed.
func (c *Codec) Encrypted() bool {
	return c != nil && c.aead != nil
}

// Encode serialises cred. Sealed output is base64(nonce || ciphertext || tag).
func (c *Codec) Encode(cred Credential) (string, error) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credential: %w", err)
	}
	if !c.Encrypted() {
		return string(raw), nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(c.aead.Seal(nonce, nonce, raw, nil)), nil
}

// Decode reverses Encode.
func (c *Codec) Decode(value string) (Credential, error) {
	raw := []byte(value)
	if c.Encrypted() {
		sealed, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return Credential{}, fmt.Errorf("failed to decode base64: %w", err)
		}
		n := c.aead.NonceSize()
		if len(sealed) < n {
			return Credential{}, fmt.Errorf("ciphertext too short")
		}
		raw, err = c.aead.Open(nil, sealed[:n], sealed[n:], nil)
		if err != nil {
			return Credential{}, fmt.Errorf("failed to decrypt: %w", err)
		}
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return cred, nil
}
