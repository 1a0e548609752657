// Package app wires the credd runtime: config, logging, storage, the
// authentication service and its HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"credd/cmd/identity"
	authapi "credd/cmd/internal/auth/api"
	"credd/cmd/internal/auth/authn"
	"credd/cmd/internal/auth/session"
	"credd/cmd/internal/auth/throttle"
	"credd/cmd/security/password"
	"credd/cmd/security/token"
)

// App is the credd server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	svc  *authn.Service
	auth *authapi.Handler
	ring *token.KeyRing
	reg  *prometheus.Registry

	closers []func() error
}

// New constructs a fully wired App. Call Close if Run is never invoked.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log)
	}

	a := &App{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	a.ring, err = NewKeyRing(a.cfg.Token, a.log)
	if err != nil {
		return err
	}
	tokens, err := session.NewManager(a.cfg.Session, a.ring, nil)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := throttle.New(ctx, a.cfg.Throttle)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeLimiter)

	hasher := password.NewPool(a.cfg.Password, a.cfg.Hasher.MaxInFlight)

	a.svc, err = authn.New(a.cfg.Authn, authn.Deps{
		Store:   st,
		Hasher:  hasher,
		Hashing: a.cfg.Password,
		Tokens:  tokens,
	},
		authn.WithLimiter(limiter),
		authn.WithMetrics(authn.NewMetrics(a.reg)),
		authn.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	a.auth, err = authapi.NewHandler(a.log, a.cfg.API, a.svc, tokens)
	return err
}

// openStore decides between Postgres-backed persistence and the in-memory store.
func (a *App) openStore(ctx context.Context) (identity.Store, error) {
	if a.cfg.DB.URL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), nil
	}

	if a.cfg.DB.AutoMigrate {
		if err := migrateUp(a.cfg.DB.URL, a.log); err != nil {
			return nil, err
		}
	}

	pool, err := NewDBPool(ctx, a.cfg.DB, a.log)
	if err != nil {
		return nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DB.Schema)
	return identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DB.Schema))
}

func migrateUp(url string, log Logger) error {
	m, err := identity.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	log.Info("db.migrated", "version", version, "dirty", dirty)
	return nil
}

// Handler returns the full HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbEnabled, a.svc.Ready, a.reg, a.auth)
	return WithRequestLogging(WithRecover(WithSecurityHeaders(mux), a.log), a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error("app.close.fail", "err", err)
		}
	}()

	c := a.cfg.HTTP
	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(c.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(c.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(c.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(c.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(c.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", c.Addr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(c.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the pool and limiter connections. Safe to call twice.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
