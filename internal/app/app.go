// Package app assembles the sync pipeline from configuration. It is shared by
// the HTTP server and the scheduler binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/validation"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// App holds the wired components.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type App struct {
	Config     *config.Config
	Pool       *pgxpool.Pool // nil with the memory store
	Store      repository.Store
	Views      *cache.ViewCache
	Dispatcher *invalidation.Dispatcher
	Publisher  service.EventPublisher
	Quota      *quota.Manager
	YouTube    *youtube.Client
	Leases     *service.LeaseManager
	Sync       *service.SyncService
	Webhook    *service.WebhookService
}

// New builds every component from cfg and registers the configured seed
// playlists. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Quota = quota.NewManager(cfg.YouTube.DailyQuota, cfg.YouTube.QuotaThreshold)
	yt, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:            cfg.YouTube.APIKey,
		Endpoint:          cfg.YouTube.Endpoint,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
	}, youtube.WithQuota(a.Quota))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create youtube client: %w", err)
	}
	a.YouTube = yt

	views, err := cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Views = views

	httpClient := &http.Client{}
	router := invalidation.NewRouter(cfg.Site.BaseURL, cfg.Invalidation)
	a.Dispatcher = invalidation.NewDispatcher(router,
		invalidation.WithViewCache(views),
		invalidation.WithPurger(invalidation.NewCDNPurger(cfg.CDN, httpClient)),
		invalidation.WithRevalidator(invalidation.NewRevalidator(cfg.Site.BaseURL, cfg.Revalidate.Secret, cfg.Revalidate.Timeout, httpClient)),
	)

	a.Publisher = service.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		pub, err := service.NewSyncEventPublisher(&cfg.RabbitMQ)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		a.Publisher = pub
	}

	a.Leases = service.NewLeaseManager(a.Store, cfg.Sync.LeaseDuration)
	reconciler := service.NewReconciler(a.Store, yt, service.ClassifyTier, cfg.YouTube.MaxResults)
	a.Sync = service.NewSyncService(a.Store, reconciler, a.Leases,
		service.WithInvalidator(a.Dispatcher),
		service.WithPublisher(a.Publisher),
		service.WithQuotaChecker(a.Quota),
		service.WithConcurrency(cfg.Sync.Concurrency),
	)
	a.Webhook = service.NewWebhookService(a.Store, yt, a.Sync, a.Dispatcher, service.ClassifyTier, cfg.YouTube.MaxResults)

	if err := a.SeedPlaylists(ctx, cfg.Sync.Playlists); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Store.Driver == "memory" {
		logger.Log.Warn("Using the in-memory store, data is lost on restart")
		a.Store = repository.NewMemoryStore()
		return nil
	}

	pool, err := db.NewPool(ctx, a.Config.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.Store = repository.NewPostgresStore(pool)
	logger.Log.Info("Database connection established",
		zap.String("host", a.Config.Database.Host),
		zap.Int32("max_conns", pool.Config().MaxConns))
	return nil
}

// SeedPlaylists registers entries of the form "PLAYLIST_ID" or
// "PLAYLIST_ID:slug" as active tracked playlists. Existing rows are kept.
func (a *App) SeedPlaylists(ctx context.Context, entries []string) error {
	for _, entry := range entries {
		id, slug := ParseSeed(entry)
		if id == "" {
			continue
		}
		if !validation.IsValidPlaylistID(id) {
			logger.Log.Warn("Seed playlist ID looks malformed", zap.String("playlistId", id))
		}
		err := a.Store.CreatePlaylist(ctx, &models.Playlist{
			PlaylistID: id,
			Slug:       slug,
			IsActive:   true,
		})
		if err != nil {
			return fmt.Errorf("seed playlist %s: %w", id, err)
		}
	}
	if len(entries) > 0 {
		logger.Log.Info("Seed playlists registered", zap.Int("count", len(entries)))
	}
	return nil
}

// ParseSeed splits a seed entry into playlist ID and slug.
func ParseSeed(entry string) (string, string) {
	id, slug, _ := strings.Cut(strings.TrimSpace(entry), ":")
	return strings.TrimSpace(id), strings.TrimSpace(slug)
}

// Close releases the publisher, cache and database pool.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.Views != nil {
		a.Views.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
