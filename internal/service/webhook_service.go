// Package service holds the playlist sync core: reconciliation, leases,
// orchestration and push notification processing.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/parser"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

var (
	errNotTracked = errors.New("video is not in a tracked playlist")
	errNotStored  = errors.New("video has no stored membership yet")
)

// WebhookService turns push notifications into scoped playlist syncs and
// video refreshes.
type WebhookService struct {
	store       repository.Store
	source      VideoSource
	syncer      *SyncService
	invalidator Invalidator
	tier        TierFunc
	maxResults  int
	now         func() time.Time
}

// NewWebhookService creates a WebhookService. syncer runs the scoped
// reconciliations; invalidator may be nil.
func NewWebhookService(store repository.Store, source VideoSource, syncer *SyncService, invalidator Invalidator, tier TierFunc, maxResults int) *WebhookService {
	if tier == nil {
		tier = ClassifyTier
	}
	return &WebhookService{
		store:       store,
		source:      source,
		syncer:      syncer,
		invalidator: invalidator,
		tier:        tier,
		maxResults:  maxResults,
		now:         time.Now,
	}
}

// ProcessNotification handles one verified, parsed notification. Per-video
// and per-playlist failures are logged and skipped; only failing to list the
// tracked playlists is returned as an error.
func (ws *WebhookService) ProcessNotification(ctx context.Context, n *parser.Notification) (*models.WebhookResponseDTO, error) {
	traceID := uuid.NewString()
	log := logger.WithTrace(traceID)

	if n == nil || (len(n.VideoIDs) == 0 && len(n.DeletedVideoIDs) == 0) {
		metrics.WebhookRequestsTotal.WithLabelValues("noop").Inc()
		return &models.WebhookResponseDTO{VideosProcessed: 0, Timestamp: ws.now().UTC()}, nil
	}

	playlists, err := ws.store.ListActivePlaylists(ctx)
	if err != nil {
		return nil, &ProcessingError{Message: "failed to list tracked playlists", Cause: err}
	}

	// One page fetch per tracked playlist, shared by every video in the batch.
	pages := make(map[string][]models.RemoteItem, len(playlists))
	members := make(map[string]map[string]bool, len(playlists))
	for _, pl := range playlists {
		items, err := ws.source.FetchPlaylistItems(ctx, pl.PlaylistID, ws.maxResults)
		if err != nil {
			log.Warn("Failed to fetch playlist page", zap.String("playlistId", pl.PlaylistID), zap.Error(err))
			continue
		}
		pages[pl.PlaylistID] = items
		set := make(map[string]bool, len(items))
		for _, it := range items {
			set[it.VideoID] = true
		}
		members[pl.PlaylistID] = set
	}

	details := make(map[string]*models.VideoDetails, len(n.VideoIDs))
	if len(n.VideoIDs) > 0 {
		fetched, err := ws.source.FetchVideoDetails(ctx, n.VideoIDs)
		if err != nil {
			log.Warn("Failed to fetch some video details", zap.Error(err))
		}
		for _, d := range fetched {
			details[d.VideoID] = d
		}
	}

	affected := ws.affectedPlaylists(ctx, playlists, members, n)

	var results []*ReconcileResult
	enriched := make(map[string]bool)
	for _, pl := range playlists {
		if !affected[pl.PlaylistID] {
			continue
		}
		items, ok := pages[pl.PlaylistID]
		if !ok {
			continue
		}
		res, err := ws.syncer.run(ctx, ReconcileRequest{
			Playlist:   pl,
			Items:      items,
			Prefetched: true,
			Details:    details,
			Trigger:    models.TriggerWebhook,
			TraceID:    traceID,
		}, false)
		if err != nil {
			log.Error("Scoped playlist sync failed", zap.String("playlistId", pl.PlaylistID), zap.Error(err))
			continue
		}
		if res.Skipped {
			continue
		}
		results = append(results, res)
		for _, id := range res.EnrichedIDs {
			enriched[id] = true
		}
	}

	processed := 0
	var touched []string
	for _, videoID := range n.VideoIDs {
		if enriched[videoID] {
			processed++
			touched = append(touched, videoID)
			continue
		}
		if err := ws.refreshVideo(ctx, videoID, details[videoID], members); err != nil {
			if errors.Is(err, errNotTracked) {
				log.Debug("Notified video is not in a tracked playlist", zap.String("videoId", videoID))
				continue
			}
			if errors.Is(err, errNotStored) {
				log.Info("Notified video left for the next playlist sync", zap.String("videoId", videoID))
				continue
			}
			log.Warn("Failed to process notified video", zap.String("videoId", videoID), zap.Error(err))
			continue
		}
		processed++
		touched = append(touched, videoID)
	}

	for _, videoID := range n.DeletedVideoIDs {
		log.Info("Video deleted upstream", zap.String("videoId", videoID))
		processed++
		touched = append(touched, videoID)
	}

	if ws.invalidator != nil && (len(touched) > 0 || len(results) > 0) {
		change := playlistChange(results, touched)
		for _, pl := range playlists {
			if affected[pl.PlaylistID] && !hasPlaylist(results, pl.PlaylistID) {
				change.Playlists = append(change.Playlists, playlistRef(pl))
			}
		}
		ws.invalidator.Dispatch(ctx, change)
	}

	metrics.WebhookRequestsTotal.WithLabelValues("processed").Inc()
	log.Info("Webhook notification processed",
		zap.Int("videos", len(n.VideoIDs)),
		zap.Int("deleted", len(n.DeletedVideoIDs)),
		zap.Int("playlists_reconciled", len(results)),
		zap.Int("videos_processed", processed))

	return &models.WebhookResponseDTO{VideosProcessed: processed, Timestamp: ws.now().UTC()}, nil
}

// affectedPlaylists returns the playlists whose page contains a notified
// video, plus the playlists a notified or deleted video is currently stored in.
func (ws *WebhookService) affectedPlaylists(ctx context.Context, playlists []*models.Playlist, members map[string]map[string]bool, n *parser.Notification) map[string]bool {
	tracked := make(map[string]bool, len(playlists))
	for _, pl := range playlists {
		tracked[pl.PlaylistID] = true
	}

	affected := make(map[string]bool)
	for _, videoID := range n.VideoIDs {
		for playlistID, set := range members {
			if set[videoID] {
				affected[playlistID] = true
			}
		}
	}

	for _, videoID := range append(append([]string(nil), n.VideoIDs...), n.DeletedVideoIDs...) {
		v, err := ws.store.FindVideoByVideoID(ctx, videoID)
		if err != nil {
			if !db.IsNotFound(err) {
				logger.Log.Warn("Failed to load video membership", zap.String("videoId", videoID), zap.Error(err))
			}
			continue
		}
		for _, playlistID := range v.Playlists {
			if tracked[playlistID] {
				affected[playlistID] = true
			}
		}
	}
	return affected
}

// refreshVideo updates a notified video that belongs to at least one tracked
// playlist and already has a stored row. Rows are only created by a playlist
// reconcile, which also writes their membership.
func (ws *WebhookService) refreshVideo(ctx context.Context, videoID string, d *models.VideoDetails, members map[string]map[string]bool) error {
	inTracked := false
	for _, set := range members {
		if set[videoID] {
			inTracked = true
			break
		}
	}
	if !inTracked {
		return errNotTracked
	}
	if _, err := ws.store.FindVideoByVideoID(ctx, videoID); err != nil {
		if db.IsNotFound(err) {
			return errNotStored
		}
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	if d == nil {
		return fmt.Errorf("video %s: no details returned", videoID)
	}
	if err := ws.store.UpsertVideo(ctx, videoFromDetails(d, ws.tier, ws.now().UTC())); err != nil {
		return fmt.Errorf("upsert video %s: %w", videoID, err)
	}
	return nil
}

func hasPlaylist(results []*ReconcileResult, playlistID string) bool {
	for _, r := range results {
		if r.PlaylistID == playlistID {
			return true
		}
	}
	return false
}

// ValidationError represents a rejected request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProcessingError represents an unexpected failure while handling a request.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
