package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const defaultRenewalInterval = 12 * time.Hour

// renewer is the part of the subscription service the loop drives.
type renewer interface {
	RenewAll(ctx context.Context) (*service.RenewalResult, error)
}

func main() {
	once := flag.Bool("once", false, "Renew every subscription once and exit")
	flag.Parse()

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

	if cfg.Webhook.CallbackURL == "" {
		logger.Log.Fatal("webhook.callbackurl is required to renew hub subscriptions")
	}
	if cfg.Webhook.Secret == "" {
		logger.Log.Warn("webhook.secret is not set, the hub will deliver unsigned notifications that the server rejects")
	}

	interval := cfg.Webhook.RenewInterval
	if interval <= 0 {
		interval = defaultRenewalInterval
	}
	if lease := time.Duration(cfg.Webhook.LeaseSeconds) * time.Second; lease > 0 && interval >= lease {
		logger.Log.Warn("Renewal interval is not shorter than the hub lease, subscriptions may lapse",
			zap.Duration("interval", interval),
			zap.Duration("lease", lease))
	}

	hub := service.NewHubClient(&http.Client{Timeout: 30 * time.Second})
	r := service.NewSubscriptionRenewer(hub, cfg.Webhook)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("Subscription renewal service starting",
		zap.Duration("interval", interval),
		zap.Int("channels", len(cfg.Webhook.Channels)),
		zap.Bool("once", *once))

	if *once {
		renew(ctx, r)
		return
	}
	run(ctx, r, interval)
	logger.Log.Info("Renewal service stopped gracefully")
}

// run renews immediately and then on every tick until ctx is cancelled.
func run(ctx context.Context, r renewer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		renew(ctx, r)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func renew(ctx context.Context, r renewer) {
	res, err := r.RenewAll(ctx)
	if err != nil {
		logger.Log.Error("Renewal run failed", zap.Error(err))
		return
	}
	if res.Failed > 0 {
		logger.Log.Warn("Some subscriptions were not renewed",
			zap.Int("failed", res.Failed),
			zap.Strings("errors", res.Errors))
	}
}
