// Package sqlite provides the SQLite-backed implementation of the
// app.SecretStore port for persisting encrypted API-key records, plus the
// fixed-window rate-limit counter store shared by the HTTP boundary.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mhakimi/keyvault/internal/app"
	"github.com/mhakimi/keyvault/internal/domain"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var _ app.SecretStore = (*Store)(nil)

// Store implements app.SecretStore using SQLite (via database/sql). It is
// safe for concurrent use; database/sql manages connection pooling and
// serialization.
type Store struct{ db *sql.DB }

// New constructs a Store, initializing the required schema if absent.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `CREATE TABLE IF NOT EXISTS user_api_keys (
user_id TEXT NOT NULL,
service_name TEXT NOT NULL,
ciphertext_b64 TEXT NOT NULL,
nonce_b64 TEXT NOT NULL,
is_valid INTEGER,
last_validated_at INTEGER,
revoked_at INTEGER,
created_at INTEGER NOT NULL,
updated_at INTEGER NOT NULL,
PRIMARY KEY (user_id, service_name)
);`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes the record for (UserID, ServiceName), overwriting any
// existing row. created_at is preserved on conflict; ciphertext and nonce
// are replaced and validity/revocation state cleared, matching the save
// semantics. The single statement keeps the overwrite atomic.
func (s *Store) Upsert(ctx context.Context, rec app.Record) error {
	const q = `INSERT INTO user_api_keys
(user_id, service_name, ciphertext_b64, nonce_b64, is_valid, last_validated_at, revoked_at, created_at, updated_at)
VALUES (?,?,?,?,NULL,NULL,NULL,?,?)
ON CONFLICT(user_id, service_name) DO UPDATE SET
ciphertext_b64=excluded.ciphertext_b64,
nonce_b64=excluded.nonce_b64,
is_valid=NULL,
last_validated_at=NULL,
revoked_at=NULL,
updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		rec.UserID, rec.ServiceName, rec.CiphertextB64, rec.NonceB64,
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	return err
}

// Get returns the record for (userID, service) or domain.ErrNotFound.
// The query is scoped by user_id; a foreign user's record is unreachable.
func (s *Store) Get(ctx context.Context, userID, service string) (*app.Record, error) {
	const q = `SELECT ciphertext_b64, nonce_b64, is_valid, last_validated_at, revoked_at, created_at, updated_at
FROM user_api_keys WHERE user_id=? AND service_name=?`
	var (
		rec         app.Record
		isValid     sql.NullInt64
		lastValid   sql.NullInt64
		revoked     sql.NullInt64
		createdUnix int64
		updatedUnix int64
	)
	row := s.db.QueryRowContext(ctx, q, userID, service)
	if err := row.Scan(&rec.CiphertextB64, &rec.NonceB64, &isValid, &lastValid, &revoked, &createdUnix, &updatedUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.UserID = userID
	rec.ServiceName = service
	if isValid.Valid {
		v := isValid.Int64 == 1
		rec.IsValid = &v
	}
	if lastValid.Valid {
		t := time.Unix(lastValid.Int64, 0).UTC()
		rec.LastValidated = &t
	}
	if revoked.Valid {
		t := time.Unix(revoked.Int64, 0).UTC()
		rec.RevokedAt = &t
	}
	rec.CreatedAt = time.Unix(createdUnix, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return &rec, nil
}

// MarkTested updates only the validity fields so it cannot clobber a
// concurrent revocation; a revoked or absent row matches nothing and is
// reported as domain.ErrNotFound.
func (s *Store) MarkTested(ctx context.Context, userID, service string, valid bool, at time.Time) error {
	const q = `UPDATE user_api_keys SET is_valid=?, last_validated_at=?, updated_at=?
WHERE user_id=? AND service_name=? AND revoked_at IS NULL`
	v := 0
	if valid {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, q, v, at.Unix(), at.Unix(), userID, service)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Revoke stamps revoked_at on the active row. Absent or already-revoked
// rows match nothing, which keeps the operation idempotent.
func (s *Store) Revoke(ctx context.Context, userID, service string, at time.Time) error {
	const q = `UPDATE user_api_keys SET revoked_at=?, updated_at=?
WHERE user_id=? AND service_name=? AND revoked_at IS NULL`
	_, err := s.db.ExecContext(ctx, q, at.Unix(), at.Unix(), userID, service)
	return err
}
