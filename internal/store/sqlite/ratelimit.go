package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// Limiter is a fixed-window rate-limit counter backed by the same SQLite
// database as the secret records. A row exists per (key, window start);
// the increment and the admission read happen in one statement so two
// concurrent requests cannot both observe "under limit" when only one
// should be admitted.
//
// Fixed-window semantics: requests are counted against the window
// containing their arrival time; counters reset at each window boundary.
type Limiter struct {
	db    *sql.DB
	clock func() time.Time
}

// NewLimiter constructs a Limiter, initializing its schema if absent.
// clock may be nil, in which case time.Now is used.
func NewLimiter(db *sql.DB, clock func() time.Time) (*Limiter, error) {
	if clock == nil {
		clock = time.Now
	}
	l := &Limiter{db: db, clock: clock}
	if err := l.init(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Limiter) init() error {
	schema := `CREATE TABLE IF NOT EXISTS rate_limits (
key TEXT NOT NULL,
window_start INTEGER NOT NULL,
count INTEGER NOT NULL,
PRIMARY KEY (key, window_start)
);`
	_, err := l.db.Exec(schema)
	return err
}

// Allow admits the request if fewer than max requests have been counted
// for key within the current fixed window. The counter is incremented
// regardless, so rejected requests still advance the count.
func (l *Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	now := l.clock().UTC()
	windowStart := now.Truncate(window).Unix()
	const q = `INSERT INTO rate_limits (key, window_start, count) VALUES (?,?,1)
ON CONFLICT(key, window_start) DO UPDATE SET count = count + 1
RETURNING count`
	var count int
	if err := l.db.QueryRowContext(ctx, q, key, windowStart).Scan(&count); err != nil {
		return false, err
	}
	return count <= max, nil
}

// PurgeBefore deletes counter rows whose window started before t and
// returns the number removed. Called periodically by the janitor.
func (l *Limiter) PurgeBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < ?`, t.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
