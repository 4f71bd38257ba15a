// Package vault encrypts credential strings (API keys, bearer tokens,
// credential file paths) at rest with a process-wide symmetric key. It
// is the only component that ever holds plaintext credentials; every
// other component deals in ciphertext or masked display strings.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// ErrTamperedCiphertext is returned by Decrypt when the ciphertext
// fails authentication — either it was corrupted in storage or it was
// sealed under a different key.
var ErrTamperedCiphertext = errors.New("vault: ciphertext failed authentication")

// Vault encrypts and decrypts credential strings with a fixed
// 32-byte key using NaCl secretbox (XSalsa20-Poly1305).
type Vault struct {
	key [keySize]byte
}

// New constructs a Vault from a 32-byte key.
func New(key [keySize]byte) *Vault {
	return &Vault{key: key}
}

// NewFromKeySource decodes a base64-encoded key as produced by
// GenerateKey or LoadOrGenerateKey.
func NewFromKeySource(encoded string) (*Vault, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("vault: key must decode to %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return New(key), nil
}

// GenerateKey produces a fresh random key, base64-encoded for storage
// in an environment variable or config file.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("vault: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Encrypt seals plaintext under the vault's key with a fresh random
// nonce, returning a base64-encoded opaque string. The empty string
// encrypts to the empty string so unset credential fields round-trip
// without spending a nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an opaque string produced by Encrypt. It returns
// ErrTamperedCiphertext if the ciphertext was corrupted or sealed
// under a different key.
func (v *Vault) Decrypt(opaque string) (string, error) {
	if opaque == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	if len(raw) < 24 {
		return "", ErrTamperedCiphertext
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &v.key)
	if !ok {
		return "", ErrTamperedCiphertext
	}
	return string(plaintext), nil
}

// Mask derives a display string for a plaintext credential: the first
// four and last four characters separated by an ellipsis, "****" for
// anything shorter than eight characters, and the empty string for
// empty input.
func Mask(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	if len(plaintext) < 8 {
		return "****"
	}
	return plaintext[:4] + "..." + plaintext[len(plaintext)-4:]
}
