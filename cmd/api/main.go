package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/spending-tracker/internal/api/handlers"
	"github.com/dvloznov/spending-tracker/internal/api/middleware"
	"github.com/dvloznov/spending-tracker/internal/app"
	"github.com/dvloznov/spending-tracker/internal/config"
	"github.com/dvloznov/spending-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("SPENDING_CONFIG"), "Path to a YAML config file (or set SPENDING_CONFIG)")
	flag.Parse()

	boot := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: logger.Format(cfg.Log.Format)})
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to build logger")
	}
	if cfg.API.TriggerSecret == "" {
		log.Warn().Msg("No trigger secret configured - the API is unauthenticated")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	// Job infrastructure: one worker, so runs never overlap.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.API.QueueSize, jobStore,
		inmemory.WithMaxRetries(cfg.Sync.MaxRetries),
		inmemory.WithRetryBackoff(cfg.Sync.RetryBackoff),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, a.RunJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	mux := handlers.NewMux(
		handlers.NewSyncHandler(jobQueue),
		handlers.NewJobsHandler(jobStore),
		handlers.NewRunsHandler(a.Store),
	)

	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.Auth(cfg.API.TriggerSecret, "/health")(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.API.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// A running sync gets the shutdown grace period before it is cancelled.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
