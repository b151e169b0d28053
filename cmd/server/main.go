package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/app"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/handler"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/middleware"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

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

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	if cfg.Webhook.Secret == "" {
		logger.Log.Warn("webhook.secret is not set, push notifications will be rejected")
	}
	if len(cfg.Auth.APIKeys) == 0 {
		logger.Log.Warn("No API keys configured, admin endpoints will reject all requests")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Log.Error("Graceful shutdown failed", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Log.Error("Failed to close server", zap.Error(err))
			}
			return
		}
		logger.Log.Info("Server stopped gracefully")
	}
}

func newRouter(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	health := handler.NewHealthHandler(a.Store, a.Publisher)
	r.GET("/health/live", health.LivenessProbe)
	r.GET("/health/ready", health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhook := handler.NewWebhookHandler(a.Webhook, cfg.Webhook.Secret, cfg.Webhook.MaxPayloadSize)
	r.GET("/webhooks/youtube", webhook.Verify)
	r.POST("/webhooks/youtube", webhook.Receive)

	revalidate := handler.NewRevalidateHandler(a.Dispatcher, cfg.Revalidate.Secret)
	r.POST("/api/revalidate", revalidate.Revalidate)

	sync := handler.NewSyncHandler(a.Sync, a.Store)
	playlists := handler.NewPlaylistHandler(a.Store, a.Views)

	v1 := r.Group("/api/v1", middleware.NewAPIKeyAuth(cfg.Auth.APIKeys).Handler())
	v1.POST("/sync", sync.SyncAll)
	v1.POST("/sync/:playlistId", sync.SyncPlaylist)
	v1.GET("/sync/history", sync.History)
	v1.GET("/playlists/:playlistId/items", playlists.Items)

	return r
}
