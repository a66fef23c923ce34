// Package main provides the entrypoint for the bbagrid block tally worker.
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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/config"
	"github.com/bbagrid/bbagrid/internal/telemetry"
	"github.com/bbagrid/bbagrid/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "bbagrid-worker"

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

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting bbagrid worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	metrics, err := worker.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize worker metrics")
	}

	tally := worker.NewTally()
	sweep := worker.NewSweepJob(worker.SweepJobConfig{
		Tally:   tally,
		Config:  cfg.Worker,
		Metrics: metrics,
		Logger:  log.With().Str("component", "sweep").Logger(),
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.WorkerPort),
		Handler:      newRouter(tally, sweep, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(gctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Tally:            tally,
			Config:           cfg.Worker,
			Metrics:          metrics,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()
		g.Go(func() error {
			return handler.Start(gctx)
		})
	} else {
		log.Warn().Msg("pubsub not configured - tally only expires devices")
	}

	g.Go(func() error {
		return sweep.Start(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("worker HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}

	log.Info().Msg("worker stopped")
}

func newRouter(tally *worker.Tally, sweep *worker.SweepJob, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"time":    time.Now().UTC(),
		})
	})
	r.Get("/v1/tally", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, tally.Snapshot())
	})
	r.Get("/v1/sweep", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, sweep.MetricsSnapshot())
	})
	return r
}
