// Package main provides the entrypoint for the bbagrid API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api"
	"github.com/bbagrid/bbagrid/internal/api/handler"
	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/auth"
	"github.com/bbagrid/bbagrid/internal/config"
	"github.com/bbagrid/bbagrid/internal/database"
	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/events"
	"github.com/bbagrid/bbagrid/internal/featureflags"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/resilience"
	"github.com/bbagrid/bbagrid/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "bbagrid-api"

	cfg, err := config.Load(os.Getenv("BBAGRID_CONFIG"))
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, err := config.NewLogger(cfg.Log, os.Stdout, serviceName, Version)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("invalid log configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting bbagrid API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	telCfg := cfg.Telemetry
	telCfg.ServiceName = serviceName
	telCfg.ServiceVersion = Version
	tp, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", telCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	locatorMetrics, err := locator.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize locator metrics")
	}

	table := grid.Default()
	if cfg.Grid.File != "" {
		table, err = grid.LoadFile(cfg.Grid.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Grid.File).Msg("failed to load grid table")
		}
	}
	log.Info().
		Str("grid", table.Name()).
		Int("blocks", table.BlockCount()).
		Msg("grid table loaded")

	// Repositories: Postgres when configured, in-memory otherwise
	var deviceRepo device.Repository = device.NewInMemoryRepository()
	var flagRepo featureflags.Repository = featureflags.NewInMemoryRepository()
	var checks []handler.DependencyCheck

	if cfg.Database.Enabled() {
		pool := connectDatabase(ctx, cfg.Database, log)
		defer pool.Close()

		deviceRepo = device.NewPostgresRepository(pool)
		flagRepo = featureflags.NewPostgresRepository(pool)
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})
	} else {
		log.Warn().Msg("no database configured - using in-memory repositories")
	}

	deviceService := device.NewService(deviceRepo)
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository:   flagRepo,
		Logger:       log,
		CacheTTL:     cfg.FeatureFlags.CacheTTL,
		DefaultFlags: featureflags.DefaultFlags(),
	})
	log.Info().Msg("feature flags service initialized")

	registry := resilience.GlobalRegistry

	var publisher events.Publisher
	if cfg.PubSub.Enabled() {
		publisher, err = events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
			Timeout:   cfg.PubSub.Timeout,
			Logger:    log,
			Registry:  registry,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub publisher")
		}
		log.Info().
			Str("project", cfg.PubSub.ProjectID).
			Str("topic", cfg.PubSub.Topic).
			Msg("publishing block changes to pubsub")
	} else {
		publisher = events.NewLogPublisher(log)
		log.Info().Msg("pubsub not configured - block changes are logged only")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close publisher")
		}
	}()

	locatorService, err := locator.NewService(locator.ServiceConfig{
		Table:     table,
		Policy:    cfg.Poll,
		Devices:   deviceService,
		Flags:     ffService,
		Publisher: publisher,
		Metrics:   locatorMetrics,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create locator")
	}

	signingKey := cfg.Auth.SigningKey
	if signingKey == "" || signingKey == config.DevSigningKey {
		signingKey = config.DevSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	if cfg.Auth.AdminKey == "" {
		log.Warn().Msg("auth.admin_key not set - admin endpoints are unreachable")
	}

	authService := auth.NewService(auth.ServiceConfig{
		Signer: auth.NewSigner(auth.SignerConfig{
			SigningKey: signingKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			DeviceTTL:  cfg.Auth.DeviceTTL,
			AdminTTL:   cfg.Auth.AdminTTL,
			Leeway:     cfg.Auth.Leeway,
		}),
		AdminKey: cfg.Auth.AdminKey,
	})
	log.Info().Msg("auth service initialized")

	router, err := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		Metrics:     metrics,
		AuthService: authService,
		Devices:     deviceService,
		Locator:     locatorService,
		Flags:       ffService,
		Registry:    registry,
		Checks:      checks,
		RateLimit:   cfg.Server.RateLimit,
		RequireTLS:  cfg.Server.RequireTLS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create router")
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// connectDatabase opens the pool and applies pending migrations.
func connectDatabase(ctx context.Context, cfg database.Config, log zerolog.Logger) *pgxpool.Pool {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("database connected")

	if cfg.Migrate {
		if err := database.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}
	return pool
}
