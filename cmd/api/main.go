package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"osutourney.org/internal/config"
	"osutourney.org/internal/httpapi"
	"osutourney.org/internal/notify"
	"osutourney.org/internal/obs"
	"osutourney.org/internal/override"
	"osutourney.org/internal/session"
	"osutourney.org/internal/staff"
	"osutourney.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	log := obs.InitLogger(obs.LogConfig{
		Production: !cfg.Env.IsDevelopment(),
		Level:      cfg.LogLevel,
		Service:    "osutourney-api",
		Version:    version,
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
	log.Info("stopped")
}

func run(cfg config.Config, log *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit, string(cfg.Env))

	store, err := pg.Open(cfg.DatabaseURL, pg.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}

	sessions, err := newSessions(cfg, store)
	if err != nil {
		return err
	}

	// The override store only exists outside production.
	var overrides *override.Store
	if !cfg.Env.IsProduction() {
		backend, closeBackend, err := overrideBackend(cfg, log)
		if err != nil {
			return err
		}
		defer closeBackend()
		overrides = override.New(backend, cfg.OverrideTTL)
	}

	var authzOverrides staff.Overrides
	var apiOverrides httpapi.Overrides
	if overrides != nil {
		authzOverrides = overrides
		apiOverrides = overrides
	}
	authz := staff.NewAuthorizer(store, sessions, authzOverrides, cfg.Env, cfg.OwnerUserID)
	engine := notify.NewEngine(store.DB())
	svc := staff.NewService(authz, store, engine)

	api := httpapi.New(httpapi.Deps{
		Env:        cfg.Env,
		Version:    version,
		DB:         store.DB(),
		Authorizer: authz,
		Sessions:   sessions,
		Inbox:      notify.NewInbox(store.DB()),
		Staff:      svc,
		Overrides:  apiOverrides,
		Cookie: httpapi.CookieConfig{
			Name:   cfg.SessionCookie,
			Secure: cfg.SecureCookies,
			MaxAge: cfg.ClaimsMaxAge,
		},
		RateLimit: httpapi.RateLimitConfig{
			Burst:     cfg.RateLimitBurst,
			PerSecond: cfg.RateLimitPerSec,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting osutourney-api",
			zap.String("addr", srv.Addr), zap.String("env", string(cfg.Env)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newSessions(cfg config.Config, store session.Store) (*session.Manager, error) {
	signer, err := session.NewSigner[session.Claims]([]byte(cfg.SessionSecret))
	if err != nil {
		return nil, err
	}
	return session.NewManager(store, signer, cfg.Env), nil
}

// overrideBackend picks Redis when REDIS_URL is set and the in-process cache
// otherwise.
func overrideBackend(cfg config.Config, log *zap.Logger) (override.Backend, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("override store: memory")
		return override.NewMemory(), func() {}, nil
	}
	r, err := override.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	log.Info("override store: redis")
	return r, func() { _ = r.Close() }, nil
}
