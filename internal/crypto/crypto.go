// Package crypto implements the authenticated encryption engine guarding
// vaulted API keys. The engine wraps AES-256-GCM with a key decoded once
// from a base64-encoded 256-bit master secret held in server configuration.
// Ciphertext (tag included) and nonce are returned as separate base64
// strings suitable for opaque column storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// NonceSize is the AES-GCM nonce width: 96 bits, the standard for GCM.
const NonceSize = 12

// keyLength is 256 bits for AES-256.
const keyLength = 32

var (
	// ErrMasterKey indicates the configured master secret is absent or does
	// not decode to exactly 32 bytes. It is a startup configuration failure.
	ErrMasterKey = errors.New("master key must be 32 bytes, base64-encoded")

	// ErrInvalidCiphertext indicates stored ciphertext or nonce is not
	// well-formed (bad encoding, wrong nonce width, truncated payload).
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrDecryptionFailed indicates authentication failure: a tampered
	// payload, corrupted record, or wrong key. Non-retriable for that record.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Engine performs authenticated encrypt/decrypt of short secret strings.
// It is safe for concurrent use; the AEAD is constructed once.
type Engine struct {
	aead cipher.AEAD
}

// New decodes the base64 master secret and constructs the engine.
// Returns ErrMasterKey if the secret is empty or not exactly 32 bytes.
// The decoded key material is never logged or echoed in errors.
func New(masterB64 string) (*Engine, error) {
	if masterB64 == "" {
		return nil, ErrMasterKey
	}
	key, err := base64.StdEncoding.DecodeString(masterB64)
	if err != nil || len(key) != keyLength {
		return nil, ErrMasterKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Engine{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random 96-bit nonce and returns the
// base64 ciphertext (authentication tag appended) and base64 nonce. The
// nonce is generated per call from crypto/rand and is never reused.
func (e *Engine) Encrypt(plaintext string) (ciphertextB64, nonceB64 string, err error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt opens a ciphertext/nonce pair produced by Encrypt and returns the
// plaintext. Any authentication failure yields ErrDecryptionFailed; no
// partial plaintext is ever returned.
func (e *Engine) Decrypt(ciphertextB64, nonceB64 string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) != NonceSize {
		return "", ErrInvalidCiphertext
	}
	if len(ct) < e.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	pt, err := e.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}
