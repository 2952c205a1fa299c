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

	httpapi "github.com/aussiebroadwan/ticketauth/internal/auth/http"
	"github.com/aussiebroadwan/ticketauth/internal/auth/replay"
	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/ticketauth/internal/auth/telemetry"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	// limiterIdle is how long a rate limit bucket may sit unused before
	// housekeeping drops it.
	limiterIdle = 30 * time.Minute
)

// Application encapsulates the ticket login service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	keyManager  *jwtx.KeyManager
	redis       *redis.Client
	tracer      *sdktrace.TracerProvider
	replayCache replay.Cache
	sweepers    []service.Sweeper

	loginService        *service.TOTPLoginService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "ticketauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initTracing(); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		_ = app.Close()
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initReplayCache(); err != nil {
		_ = app.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("ticketauth starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.Close()
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
	app.logger.Info("shutting down ticketauth...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("ticketauth stopped")
	return nil
}

// Close flushes spans and releases the database and redis connections
// without touching the HTTP server.
func (app *Application) Close() error {
	var errs []error
	if app.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.tracer.Shutdown(ctx); err != nil {
			app.logger.Error("error flushing spans", "error", err)
			errs = append(errs, err)
		}
		app.tracer = nil
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
		app.db = nil
	}
	return errors.Join(errs...)
}

// OpenStore opens the configured database driver and applies migrations.
func OpenStore(cfg Config) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(cfg.DatabaseFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", cfg.DatabaseDriver, err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// initTracing installs the global tracer provider. Without an OTLP
// endpoint spans are still created so logs carry trace ids.
func (app *Application) initTracing() error {
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Endpoint:       app.cfg.OTLPEndpoint,
		Insecure:       app.cfg.OTLPInsecure,
		ServiceName:    "ticketauth",
		ServiceVersion: BuildVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	telemetry.SetGlobal(tp)
	app.tracer = tp

	if app.cfg.OTLPEndpoint != "" {
		app.logger.Info("exporting traces", "endpoint", app.cfg.OTLPEndpoint)
	}
	return nil
}

func (app *Application) initDatabase() error {
	db, err := OpenStore(app.cfg)
	if err != nil {
		return err
	}
	app.db = db

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initReplayCache selects where redeemed time steps are recorded.
func (app *Application) initReplayCache() error {
	switch app.cfg.ReplayCache {
	case ReplayOff:
		app.logger.Warn("TOTP replay protection disabled")
		app.replayCache = replay.Noop{}

	case ReplayRedis:
		app.redis = redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		rc := replay.NewRedisCache(app.redis)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			_ = app.redis.Close()
			app.redis = nil
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.replayCache = rc
		app.logger.Info("TOTP replay cache backed by redis", "addr", app.cfg.RedisAddr)

	default:
		mc := replay.NewMemoryCache()
		app.replayCache = mc
		app.sweepers = append(app.sweepers, mc)
		app.logger.Info("TOTP replay cache held in memory")
	}
	return nil
}

// initServices wires the login exchange and housekeeping.
func (app *Application) initServices() error {
	claims, err := app.cfg.Claims()
	if err != nil {
		return fmt.Errorf("invalid claims map: %w", err)
	}

	tickets := service.NewTicketStore(app.db)
	tickets.TTL = app.cfg.TicketTTL
	tickets.MaxAttempts = app.cfg.TOTPMaxAttempts

	totpOpts := service.DefaultTOTPOptions()
	totpOpts.Skew = app.cfg.TOTPSkew

	app.loginService = &service.TOTPLoginService{
		Store:    app.db,
		Accounts: service.NewAccountRepository(app.db),
		Tickets:  tickets,
		Verifier: service.NewTOTPVerifier(totpOpts),
		Sessions: &service.SessionIssuer{
			KeyManager: app.keyManager,
			Store:      app.db,
			Issuer:     app.cfg.Issuer,
			Audience:   app.cfg.AudienceList(),
			AccessTTL:  app.cfg.AccessTTL,
			RefreshTTL: app.cfg.RefreshTTL,
			Namespace:  app.cfg.ClaimsNamespace,
			ClaimsMap:  claims,
		},
		Replay: app.replayCache,
	}
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.LoginService = app.loginService
	router.TrustProxy = app.cfg.TrustProxy
	if rc, ok := app.replayCache.(*replay.RedisCache); ok {
		router.ReplayCache = rc
	}
	router.SetRateLimits(app.cfg.LoginRateLimit(), app.cfg.PublicRateLimit())
	router.ApplyRoutes()
	app.router = router

	for _, l := range router.Limiters() {
		app.sweepers = append(app.sweepers, service.SweeperFunc(func() int {
			return l.Sweep(limiterIdle)
		}))
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.sweepers...,
	)

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
