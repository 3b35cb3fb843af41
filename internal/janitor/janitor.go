// Package janitor implements background cleanup of expired rate-limit
// counter windows. It operates independently from the request path so the
// counter table stays small without any per-request housekeeping.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CounterStore abstracts the minimal limiter operation the Janitor
// requires. Satisfied by *sqlite.Limiter.
type CounterStore interface {
	// PurgeBefore deletes counter rows whose window started before t and
	// returns the number removed.
	PurgeBefore(ctx context.Context, t time.Time) (int, error)
}

// Observer receives purge counts. Satisfied by the metrics manager.
type Observer interface {
	Inc(name string, delta int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration // how often a cycle begins
	// Retention is how far back counter windows are kept. It must exceed
	// the widest rate-limit window in use; expired windows can no longer
	// affect admission decisions.
	Retention time.Duration
	Logger    *slog.Logger // optional logger (defaults to slog.Default())
	Observer  Observer     // optional purge counter
	Metric    string       // counter name reported to Observer
}

// Janitor encapsulates the background cleanup loop.
type Janitor struct {
	store  CounterStore
	cfg    Config
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor.
func New(store CounterStore, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	} // already started
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle purges counter windows older than the retention horizon.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	cutoff := time.Now().UTC().Add(-j.cfg.Retention)
	n, err := j.store.PurgeBefore(ctx, cutoff)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("purge", "error", err)
		return
	}
	if j.cfg.Observer != nil && j.cfg.Metric != "" && n > 0 {
		j.cfg.Observer.Inc(j.cfg.Metric, int64(n))
	}
	log.Info("cycle complete", "purged", n, "ms", time.Since(start).Milliseconds())
}
