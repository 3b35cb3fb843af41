// Package metrics provides a lightweight persistent metrics manager.
// It batches in-memory counter increments and periodically flushes them to
// the shared SQLite database used for secret records. The design
// intentionally avoids dependencies and histogram logic; only monotonic
// counters are supported.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Names for counters used by the application.
const (
	CounterKeysSaved      = "api_keys_saved_total"
	CounterKeysTested     = "api_keys_tested_total"
	CounterKeysRevoked    = "api_keys_revoked_total"
	CounterRateLimited    = "requests_rate_limited_total"
	CounterOriginRejected = "requests_origin_rejected_total"
	CounterWindowsPurged  = "rate_limit_windows_purged_total"
)

// Config controls flush cadence and logging.
type Config struct {
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Manager aggregates counter increments and flushes them.
type Manager struct {
	cfg     Config
	db      *sql.DB
	events  chan event
	stop    chan struct{}
	done    chan struct{}
	started bool

	// in-memory deltas (protected by mu)
	mu       sync.Mutex
	counters map[string]int64
}

type event struct {
	name string
	v    int64
}

// New creates a Manager. Call Start to begin background flushing.
func New(db *sql.DB, cfg Config) *Manager {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		db:       db,
		events:   make(chan event, 1024),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		counters: make(map[string]int64),
	}
}

// InitSchema ensures the metrics table exists.
func (m *Manager) InitSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS metrics_counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);`
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// Start launches the background flush loop.
func (m *Manager) Start(ctx context.Context) {
	if m.started {
		return
	}
	m.started = true
	go m.loop(ctx)
}

// Stop signals the flush loop to exit, drains pending events, and performs
// a final flush.
func (m *Manager) Stop(ctx context.Context) {
	if m.started {
		close(m.stop)
		<-m.done
	}
	m.drain()
	_ = m.flush(ctx)
}

// drain applies any events still buffered after the loop exits.
func (m *Manager) drain() {
	for {
		select {
		case ev := <-m.events:
			m.mu.Lock()
			m.counters[ev.name] += ev.v
			m.mu.Unlock()
		default:
			return
		}
	}
}

// Inc increments a counter by delta (>=1). Non-blocking: increments are
// dropped best-effort if the event buffer is full.
func (m *Manager) Inc(name string, delta int64) {
	if delta <= 0 {
		return
	}
	select {
	case m.events <- event{name: name, v: delta}:
	default:
	}
}

func (m *Manager) loop(ctx context.Context) {
	log := m.cfg.Logger.With("domain", "metrics")
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer func() {
		ticker.Stop()
		close(m.done)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("metrics stop", "reason", "context_cancel")
			return
		case <-m.stop:
			log.Info("metrics stop", "reason", "stop_signal")
			return
		case ev := <-m.events:
			m.mu.Lock()
			m.counters[ev.name] += ev.v
			m.mu.Unlock()
		case <-ticker.C:
			if err := m.flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("flush", "error", err)
			}
		}
	}
}

// Snapshot returns persisted counters layered with in-memory deltas.
func (m *Manager) Snapshot(ctx context.Context) (map[string]int64, error) {
	counters := make(map[string]int64)
	rows, err := m.db.QueryContext(ctx, `SELECT name, value FROM metrics_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		var v int64
		if err := rows.Scan(&n, &v); err != nil {
			return nil, err
		}
		counters[n] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	for n, v := range m.counters {
		counters[n] += v
	}
	m.mu.Unlock()
	return counters, nil
}

// flush writes in-memory deltas to SQLite and resets them.
func (m *Manager) flush(ctx context.Context) error {
	m.mu.Lock()
	if len(m.counters) == 0 {
		m.mu.Unlock()
		return nil
	}
	deltas := m.counters
	m.counters = make(map[string]int64)
	m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for name, delta := range deltas {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics_counters(name,value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`, name, delta); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
