package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/app"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const defaultInterval = 15 * time.Minute

// bulkSyncer is the part of the sync service the scheduler drives.
type bulkSyncer interface {
	SyncAll(ctx context.Context, trigger models.Trigger) (*service.BulkResult, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	interval := cfg.Sync.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	logger.Log.Info("Scheduler starting",
		zap.Duration("interval", interval),
		zap.Int("concurrency", cfg.Sync.Concurrency))

	run(ctx, a.Sync, interval)

	logger.Log.Info("Scheduler stopped")
}

// run syncs immediately and then on every tick until ctx is cancelled.
func run(ctx context.Context, syncer bulkSyncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		tick(ctx, syncer)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, syncer bulkSyncer) {
	start := time.Now()
	bulk, err := syncer.SyncAll(ctx, models.TriggerScheduled)
	if err != nil {
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
		return
	}
	logger.Log.Info("Scheduled sync completed",
		zap.String("traceId", bulk.TraceID),
		zap.Int("succeeded", bulk.Succeeded),
		zap.Int("partial", bulk.Partial),
		zap.Int("failed", bulk.Failed),
		zap.Int("skipped", bulk.Skipped),
		zap.Duration("duration", time.Since(start)))
}
