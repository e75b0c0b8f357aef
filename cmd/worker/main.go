package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/spending-tracker/internal/app"
	"github.com/dvloznov/spending-tracker/internal/config"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/jobs"
	"github.com/dvloznov/spending-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SPENDING_CONFIG"), "Path to a YAML config file (or set SPENDING_CONFIG)")
		interval   = flag.Duration("interval", 24*time.Hour, "Time between incremental syncs")
	)
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

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(1, jobStore,
		inmemory.WithMaxRetries(cfg.Sync.MaxRetries),
		inmemory.WithRetryBackoff(cfg.Sync.RetryBackoff),
	)

	if err := jobQueue.Start(ctx, a.RunJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go schedule(ctx, *interval, jobQueue)

	log.Info().Dur("interval", *interval).Msg("Worker service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// schedule publishes an incremental sync immediately and then once per
// interval until ctx is done. A tick is skipped while the previous sync is
// still queued.
func schedule(ctx context.Context, interval time.Duration, pub jobs.Publisher) {
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		publishCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := pub.PublishSync(publishCtx, &jobs.SyncJob{Kind: domain.SyncIncremental})
		cancel()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		default:
			log.Warn().Err(err).Msg("Skipping scheduled sync")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
