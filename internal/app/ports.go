// Package app defines the application layer "ports" (interfaces) and simple
// data contracts the vault use-cases depend upon. It follows a hexagonal
// (ports & adapters) design: this package declares what the core needs,
// while adapter packages (SQLite storage, HTTP layer, probe strategies)
// provide concrete implementations. No I/O, logging, SQL, or network
// concerns belong here.
package app

import (
	"context"
	"time"
)

// Record is the persisted per-(user, service) encrypted key entry. The
// plaintext key never appears here; only the AEAD ciphertext and its nonce.
type Record struct {
	UserID        string
	ServiceName   string
	CiphertextB64 string
	NonceB64      string
	IsValid       *bool      // nil until tested; reset to nil on save
	LastValidated *time.Time // nil until a test completes
	RevokedAt     *time.Time // nil for an active record
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Revoked reports whether the record carries a revocation stamp.
func (r *Record) Revoked() bool { return r.RevokedAt != nil }

// Clock abstracts time to enable deterministic testing of lifecycle stamps.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// SecretStore is the storage port for secret records. Implementations must
// enforce the (UserID, ServiceName) uniqueness invariant and scope every
// query by user id so cross-user reads are impossible at this layer.
type SecretStore interface {
	// Upsert atomically creates or overwrites the record for
	// (rec.UserID, rec.ServiceName). An overwrite replaces ciphertext and
	// nonce, clears IsValid, LastValidated, and RevokedAt, preserves
	// CreatedAt, and stamps UpdatedAt. No partially written record may
	// ever be observable.
	Upsert(ctx context.Context, rec Record) error

	// Get returns the record for (userID, service), revoked or not.
	// Returns domain.ErrNotFound if no row exists.
	Get(ctx context.Context, userID, service string) (*Record, error)

	// MarkTested records a connectivity test outcome using a field-scoped
	// update (IsValid, LastValidated, UpdatedAt only) so it cannot clobber
	// a concurrent revocation. Returns domain.ErrNotFound if the record is
	// absent or revoked.
	MarkTested(ctx context.Context, userID, service string, valid bool, at time.Time) error

	// Revoke stamps RevokedAt on the active record via a field-scoped
	// update. Revoking an absent or already-revoked record is a no-op.
	Revoke(ctx context.Context, userID, service string, at time.Time) error
}

// Cipher is the authenticated-encryption port used for key material at
// rest. Satisfied by *crypto.Engine.
type Cipher interface {
	Encrypt(plaintext string) (ciphertextB64, nonceB64 string, err error)
	Decrypt(ciphertextB64, nonceB64 string) (string, error)
}

// ConnectivityProber checks a decrypted key against its upstream provider.
// Satisfied by *probe.Registry, which bounds the call with a timeout.
type ConnectivityProber interface {
	Check(ctx context.Context, service, apiKey string) (bool, error)
}
