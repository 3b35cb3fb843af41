// Package main provides the keyvault binary entry point. It loads
// configuration from the environment, opens the SQLite database, wires the
// encryption engine, token verifier, connectivity prober, rate limiter,
// metrics and janitor together, and serves the HTTP API.
//
// The application flow:
//  1. Load defaults and apply KEYVAULT_* environment variables.
//  2. Validate configuration.
//  3. Open storage and initialize schemas.
//  4. Build the application service and HTTP handler.
//  5. Start background workers and the HTTP server.
//
// It blocks until the server exits or a termination signal arrives, then
// shuts down in order: server, janitor, metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"database/sql"

	"github.com/mhakimi/keyvault/internal/app"
	"github.com/mhakimi/keyvault/internal/auth"
	"github.com/mhakimi/keyvault/internal/config"
	"github.com/mhakimi/keyvault/internal/crypto"
	"github.com/mhakimi/keyvault/internal/httpx"
	"github.com/mhakimi/keyvault/internal/janitor"
	"github.com/mhakimi/keyvault/internal/metrics"
	"github.com/mhakimi/keyvault/internal/probe"
	"github.com/mhakimi/keyvault/internal/store/sqlite"

	_ "github.com/mattn/go-sqlite3"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(2)
	}
	return cfg
}

func ensureDataDir(dir string) (string, error) {
	if st, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
				return "", fmt.Errorf("create data directory %s: %w", dir, mkErr)
			}
		} else {
			return "", fmt.Errorf("stat data directory %s: %w", dir, err)
		}
	} else if !st.IsDir() {
		return "", fmt.Errorf("data path %s is not a directory", dir)
	}
	return dir, nil
}

func openDatabase(dataDir string) (*sql.DB, *sqlite.Store, *sqlite.Limiter, error) {
	dsn := "file:" + filepath.Join(dataDir, "keyvault.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite driver: %w", err)
	}
	store, err := sqlite.New(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	limiter, err := sqlite.NewLimiter(db, func() time.Time { return time.Now().UTC() })
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("init rate limit schema: %w", err)
	}
	return db, store, limiter, nil
}

func buildProber(cfg *config.Config) *probe.Registry {
	var fallback probe.Prober = &probe.Static{}
	if cfg.ProbeURL != "" {
		fallback = &probe.HTTP{URL: cfg.ProbeURL}
	}
	return probe.NewRegistry(fallback, cfg.ProbeTimeout)
}

func buildService(cfg *config.Config, store app.SecretStore, prober app.ConnectivityProber, clock app.Clock) (*app.Service, error) {
	engine, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init encryption engine: %w", err)
	}
	return &app.Service{Store: store, Cipher: engine, Prober: prober, Clock: clock}, nil
}

func buildHandler(cfg *config.Config, svc *app.Service, limiter httpx.Limiter, db *sql.DB, mgr *metrics.Manager) http.Handler {
	policy := httpx.OriginPolicy{
		AllowedOrigins: cfg.Origins,
		AllowDev:       cfg.AllowDevOrigins,
	}
	limits := httpx.RateLimits{
		Window:   cfg.RateWindow,
		TestMax:  cfg.TestMax,
		WriteMax: cfg.WriteMax,
	}
	h := httpx.New(svc, auth.NewVerifier(cfg.AuthSecret), limiter, policy, limits)
	h.Readiness = func(ctx context.Context) error { return db.PingContext(ctx) }
	h.Observer = mgr

	mux := http.NewServeMux()
	mux.Handle("/", h.Router())
	mux.Handle("/metrics", metrics.Handler(mgr, cfg.MetricsToken))
	return mux
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{Addr: cfg.Addr, Handler: handler, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
}

func run() error {
	cfg := loadConfig()
	dataDir, err := ensureDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	db, store, limiter, err := openDatabase(dataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := metrics.New(db, metrics.Config{})
	if err := mgr.InitSchema(ctx); err != nil {
		return fmt.Errorf("init metrics schema: %w", err)
	}
	mgr.Start(ctx)
	defer mgr.Stop(context.Background())

	jan := janitor.New(limiter, janitor.Config{
		Interval:  cfg.JanitorInterval,
		Retention: 2 * cfg.RateWindow,
		Observer:  mgr,
		Metric:    metrics.CounterWindowsPurged,
	})
	jan.Start(ctx)
	defer jan.Stop()

	svc, err := buildService(cfg, store, buildProber(cfg), realClock{})
	if err != nil {
		return err
	}
	srv := newServer(cfg, buildHandler(cfg, svc, limiter, db, mgr))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
