// Package app contains the application orchestration layer for the vault.
// It wires domain validation with the crypto, storage, and probe ports
// without performing any I/O itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhakimi/keyvault/internal/domain"
)

// ErrDecrypt wraps a storage-level decryption failure. It must never reach
// the client beyond a generic internal error.
var ErrDecrypt = errors.New("stored key cannot be decrypted")

// Status is the caller-visible view of a secret record. For an absent or
// revoked record only HasKey=false is populated.
type Status struct {
	HasKey        bool       `json:"hasKey"`
	IsValid       *bool      `json:"isValid"`
	LastValidated *time.Time `json:"lastValidatedAt"`
	CreatedAt     *time.Time `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
}

// TestResult is the outcome of a connectivity test. UpstreamErr is set when
// the probe itself failed (timeout, provider outage); the record is marked
// invalid in that case and the message is safe to surface.
type TestResult struct {
	Valid       bool
	UpstreamErr error
}

// Service implements the four vault operations over Secret Records using
// the injected store, cipher, prober, and clock.
type Service struct {
	Store  SecretStore
	Cipher Cipher
	Prober ConnectivityProber
	Clock  Clock
}

// Save validates, encrypts, and upserts the caller's API key for service.
// Validation happens before any crypto work; the plaintext is never stored
// or echoed back. An existing record for the pair is overwritten and its
// validity and revocation state reset.
func (s *Service) Save(ctx context.Context, userID, service, apiKey string) error {
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		return err
	}
	ct, nonce, err := s.Cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt key: %w", err)
	}
	now := s.Clock.Now()
	rec := Record{
		UserID:        userID,
		ServiceName:   service,
		CiphertextB64: ct,
		NonceB64:      nonce,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}
	return nil
}

// Status reports the current record state for (userID, service). A revoked
// record is indistinguishable from an absent one: HasKey=false, all other
// fields unset.
func (s *Service) Status(ctx context.Context, userID, service string) (Status, error) {
	rec, err := s.Store.Get(ctx, userID, service)
	if errors.Is(err, domain.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("load record: %w", err)
	}
	if rec.Revoked() {
		return Status{}, nil
	}
	created := rec.CreatedAt
	updated := rec.UpdatedAt
	return Status{
		HasKey:        true,
		IsValid:       rec.IsValid,
		LastValidated: rec.LastValidated,
		CreatedAt:     &created,
		UpdatedAt:     &updated,
	}, nil
}

// Test decrypts the stored key server-side, runs the provider connectivity
// check, and records the outcome. Absent or revoked records yield
// domain.ErrNotFound. A probe failure (timeout or upstream outage) records
// the key as invalid and is reported via TestResult.UpstreamErr rather
// than an operation error. The plaintext exists only on this call stack.
func (s *Service) Test(ctx context.Context, userID, service string) (TestResult, error) {
	rec, err := s.Store.Get(ctx, userID, service)
	if err != nil {
		return TestResult{}, err
	}
	if rec.Revoked() {
		return TestResult{}, domain.ErrNotFound
	}
	apiKey, err := s.Cipher.Decrypt(rec.CiphertextB64, rec.NonceB64)
	if err != nil {
		return TestResult{}, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	valid, probeErr := s.Prober.Check(ctx, service, apiKey)
	if probeErr != nil {
		valid = false
	}
	if err := s.Store.MarkTested(ctx, userID, service, valid, s.Clock.Now()); err != nil {
		// A revoke racing the probe surfaces here; report the record gone.
		if errors.Is(err, domain.ErrNotFound) {
			return TestResult{}, domain.ErrNotFound
		}
		return TestResult{}, fmt.Errorf("record test result: %w", err)
	}
	return TestResult{Valid: valid, UpstreamErr: probeErr}, nil
}

// Revoke stamps the record as logically deleted. It is idempotent: revoking
// an absent or already-revoked record succeeds silently. The ciphertext row
// is retained for audit; only a subsequent Save reactivates the pair.
func (s *Service) Revoke(ctx context.Context, userID, service string) error {
	if err := s.Store.Revoke(ctx, userID, service, s.Clock.Now()); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	return nil
}
