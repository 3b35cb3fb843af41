// Package domain apikey.go contains validation rules for user-supplied API keys.
package domain

import "unicode/utf8"

// MinAPIKeyLength is the minimum accepted length of a plaintext API key.
// Anything shorter is rejected before any cryptographic work happens.
const MinAPIKeyLength = 10

// MaxAPIKeyLength bounds the accepted key size so a hostile client cannot
// feed arbitrarily large payloads into the encryption path.
const MaxAPIKeyLength = 4096

// ValidateAPIKey checks that key is a plausible third-party API key:
// non-empty, valid UTF-8, and within [MinAPIKeyLength, MaxAPIKeyLength].
// Returns ErrInvalidAPIKey on any violation.
func ValidateAPIKey(key string) error {
	if len(key) < MinAPIKeyLength || len(key) > MaxAPIKeyLength {
		return ErrInvalidAPIKey
	}
	if !utf8.ValidString(key) {
		return ErrInvalidAPIKey
	}
	return nil
}
