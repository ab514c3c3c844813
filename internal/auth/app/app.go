package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/wateroflife/internal/auth/http"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/oidc"
	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	sessions session.Store
	redis    *redis.Client
	provider *oidc.Provider
	keys     *jwtx.Registry
	metrics  *observability.Metrics

	// Services
	tokenService    *service.TokenService
	authService     *service.AuthService
	exchangeService *service.ExchangeService
	userService     *service.UserService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New discovers the provider and loads its keys before anything is served.
// Failing either is fatal: without keys no login can ever succeed.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "wateroflife",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: observability.NewMetrics(),
	}

	if err := app.initDatabase(); err != nil {
		_ = app.closeAll()
		return nil, err
	}
	if err := app.initProvider(ctx); err != nil {
		_ = app.closeAll()
		return nil, err
	}
	if err := app.initSessions(ctx); err != nil {
		_ = app.closeAll()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.closeAll()
		return nil, err
	}
	app.initHTTP()

	if !cfg.CookieSecure {
		app.logger.Warn("cookies are sent without the Secure attribute")
	}
	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("wateroflife starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down wateroflife...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.closeAll(); err != nil {
		return err
	}

	app.logger.Info("wateroflife stopped")
	return nil
}

func (app *Application) closeAll() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		app.cfg.DatabaseFile,
	)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initProvider(ctx context.Context) error {
	provider, err := oidc.Discover(ctx, app.cfg.OIDCIssuerURL, oidc.ClientConfig{
		ClientID:     app.cfg.ClientID,
		ClientSecret: app.cfg.ClientSecret,
		RedirectURL:  app.cfg.RedirectURL,
		Scopes:       app.cfg.Scopes,
		Timeout:      app.cfg.ProviderTimeout,
	})
	if err != nil {
		return err
	}
	app.provider = provider
	app.logger.Info("provider discovered", "issuer", provider.Issuer())

	keys, err := LoadProviderKeys(ctx, provider, app.logger)
	if err != nil {
		return err
	}
	app.keys = keys
	return nil
}

func (app *Application) initSessions(ctx context.Context) error {
	switch app.cfg.SessionStore {
	case SessionStoreRedis:
		client, err := session.NewRedisClient(ctx, app.cfg.RedisURL)
		if err != nil {
			return err
		}
		app.redis = client
		app.sessions = session.NewRedisStore(client, app.cfg.SessionTTL)
	default:
		app.sessions = session.NewMemoryStore(app.cfg.SessionCacheSize, app.cfg.SessionTTL)
	}
	app.logger.Info("session store ready", "kind", app.cfg.SessionStore, "ttl", app.cfg.SessionTTL)
	return nil
}

func (app *Application) initServices() error {
	tokens, err := service.NewTokenService(
		[]byte(app.cfg.AccessTokenHMACSecret),
		[]byte(app.cfg.RefreshTokenHMACSecret),
		app.cfg.Issuer,
		app.cfg.ClientID,
	)
	if err != nil {
		return err
	}
	app.tokenService = tokens

	app.authService = &service.AuthService{
		AccessSecret:  jwtx.HMACSecret(app.cfg.AccessTokenHMACSecret),
		RefreshSecret: jwtx.HMACSecret(app.cfg.RefreshTokenHMACSecret),
		Audience:      app.cfg.ClientID,
		Users:         app.db.Users(),
		Metrics:       app.metrics,
	}

	app.exchangeService = &service.ExchangeService{
		Provider:  app.provider,
		Keys:      app.keys,
		Sessions:  app.sessions,
		Store:     app.db,
		Tokens:    tokens,
		ClientID:  app.cfg.ClientID,
		AdminRole: app.cfg.AdminRole,
		Metrics:   app.metrics,
	}

	app.userService = &service.UserService{Store: app.db}
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.sessions,
		app.keys,
		app.metrics,
		app.logger,
	)

	router.AuthService = app.authService
	router.ExchangeService = app.exchangeService
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.SessionManager = session.Manager{TTL: app.cfg.SessionTTL, Secure: app.cfg.CookieSecure}
	router.Cookies = httpapi.TokenCookies{Secure: app.cfg.CookieSecure}
	router.EndSessionURL = app.provider.EndSessionURL()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the fully wired router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }
