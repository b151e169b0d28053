package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// Invalidator propagates a content change to the caching tiers.
type Invalidator interface {
	Dispatch(ctx context.Context, change invalidation.Change) invalidation.Report
}

// QuotaChecker reports whether enough remote API quota remains.
type QuotaChecker interface {
	Available(required int) bool
}

// quotaPerPlaylist is the minimum units one reconciliation consumes.
const quotaPerPlaylist = 2

// BulkResult aggregates a SyncAll run.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type BulkResult struct {
	TraceID   string
	Succeeded int
	Partial   int
	Failed    int
	Skipped   int
	Added     int
	Updated   int
	Removed   int
	Errors    []string
	Results   []*ReconcileResult
}

// SyncService orchestrates lease, reconciliation, invalidation and event
// publishing for tracked playlists.
type SyncService struct {
	store       repository.Store
	reconciler  *Reconciler
	leases      *LeaseManager
	invalidator Invalidator
	publisher   EventPublisher
	quota       QuotaChecker
	concurrency int
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithInvalidator dispatches invalidation after changed reconciliations.
func WithInvalidator(inv Invalidator) SyncOption {
	return func(s *SyncService) { s.invalidator = inv }
}

// WithPublisher publishes a SyncEvent after every reconciliation.
func WithPublisher(p EventPublisher) SyncOption {
	return func(s *SyncService) { s.publisher = p }
}

// WithQuotaChecker stops bulk runs once the daily quota threshold is reached.
func WithQuotaChecker(q QuotaChecker) SyncOption {
	return func(s *SyncService) { s.quota = q }
}

// WithConcurrency bounds how many playlists SyncAll reconciles at once.
func WithConcurrency(n int) SyncOption {
	return func(s *SyncService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSyncService creates a SyncService.
func NewSyncService(store repository.Store, reconciler *Reconciler, leases *LeaseManager, opts ...SyncOption) *SyncService {
	s := &SyncService{
		store:       store,
		reconciler:  reconciler,
		leases:      leases,
		publisher:   NoopPublisher{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncPlaylist reconciles one tracked playlist. When another run holds the
// lease the result has Skipped set and nothing is written.
func (s *SyncService) SyncPlaylist(ctx context.Context, playlistID string, trigger models.Trigger) (*ReconcileResult, error) {
	pl, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("load playlist: %w", err)
	}

	return s.run(ctx, ReconcileRequest{
		Playlist: pl,
		Trigger:  trigger,
		TraceID:  uuid.NewString(),
	}, true)
}

// SyncAll reconciles every active playlist. A failing playlist never stops
// its siblings; errors are collected on the result.
func (s *SyncService) SyncAll(ctx context.Context, trigger models.Trigger) (*BulkResult, error) {
	playlists, err := s.store.ListActivePlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active playlists: %w", err)
	}

	bulk := &BulkResult{TraceID: uuid.NewString()}
	log := logger.WithTrace(bulk.TraceID)
	log.Info("Starting bulk sync",
		zap.String("trigger", string(trigger)),
		zap.Int("playlists", len(playlists)),
		zap.Int("concurrency", s.concurrency))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, pl := range playlists {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				bulk.Skipped++
				mu.Unlock()
				return nil
			}
			if s.quota != nil && !s.quota.Available(quotaPerPlaylist) {
				log.Warn("Quota threshold reached, skipping playlist", zap.String("playlistId", pl.PlaylistID))
				mu.Lock()
				bulk.Skipped++
				bulk.Errors = append(bulk.Errors, pl.PlaylistID+": quota threshold reached")
				mu.Unlock()
				return nil
			}

			res, err := s.run(ctx, ReconcileRequest{Playlist: pl, Trigger: trigger, TraceID: bulk.TraceID}, true)

			mu.Lock()
			defer mu.Unlock()
			bulk.add(pl.PlaylistID, res, err)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Bulk sync finished",
		zap.Int("succeeded", bulk.Succeeded),
		zap.Int("partial", bulk.Partial),
		zap.Int("failed", bulk.Failed),
		zap.Int("skipped", bulk.Skipped))

	return bulk, nil
}

func (b *BulkResult) add(playlistID string, res *ReconcileResult, err error) {
	if res != nil {
		b.Results = append(b.Results, res)
	}
	switch {
	case err != nil && (res == nil || res.Status != models.SyncStatusFailed):
		b.Failed++
		b.Errors = append(b.Errors, fmt.Sprintf("%s: %v", playlistID, err))
		return
	case res.Skipped:
		b.Skipped++
		return
	case res.Status == models.SyncStatusFailed:
		b.Failed++
	case res.Status == models.SyncStatusPartial:
		b.Partial++
	default:
		b.Succeeded++
	}
	for _, e := range res.Errors {
		b.Errors = append(b.Errors, playlistID+": "+e)
	}
	b.Added += res.Added
	b.Updated += res.Updated
	b.Removed += res.Removed
}

// run holds the lease around one reconciliation. With dispatch set a changed
// playlist is invalidated straight away.
func (s *SyncService) run(ctx context.Context, req ReconcileRequest, dispatch bool) (*ReconcileResult, error) {
	pl := req.Playlist
	owner := uuid.NewString()

	ok, err := s.leases.Acquire(ctx, pl.PlaylistID, owner, 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.WithTrace(req.TraceID).Info("Sync skipped, lease held",
			zap.String("playlistId", pl.PlaylistID))
		return &ReconcileResult{
			PlaylistID:   pl.PlaylistID,
			PlaylistSlug: pl.Slug,
			TraceID:      req.TraceID,
			Skipped:      true,
		}, nil
	}
	defer s.leases.Release(context.WithoutCancel(ctx), pl.PlaylistID, owner)

	// The lease is renewed after the fetch and before any write.
	req.KeepAlive = func(ctx context.Context) (bool, error) {
		return s.leases.Acquire(ctx, pl.PlaylistID, owner, 0)
	}
	res, err := s.reconciler.Reconcile(ctx, req)

	if err == nil && dispatch && res.Changed() && s.invalidator != nil {
		s.invalidator.Dispatch(ctx, playlistChange([]*ReconcileResult{res}, nil))
	}
	s.publish(ctx, res, req.Trigger)

	return res, err
}

func (s *SyncService) publish(ctx context.Context, res *ReconcileResult, trigger models.Trigger) {
	if s.publisher == nil || res == nil {
		return
	}
	event := &models.SyncEvent{
		EventID:         uuid.New(),
		PlaylistID:      res.PlaylistID,
		Status:          res.Status,
		Trigger:         trigger,
		TraceID:         res.TraceID,
		VideosAdded:     res.Added,
		VideosUpdated:   res.Updated,
		VideosRemoved:   res.Removed,
		ChangedVideoIDs: res.ChangedVideoIDs,
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.publisher.PublishSyncEvent(ctx, event); err != nil {
		logger.WithTrace(res.TraceID).Warn("Failed to publish sync event",
			zap.String("playlistId", res.PlaylistID),
			zap.Error(err))
	}
}

// playlistChange builds one invalidation change covering results and any
// extra video IDs.
func playlistChange(results []*ReconcileResult, extraVideoIDs []string) invalidation.Change {
	change := invalidation.Change{Type: invalidation.ChangePlaylist}
	seenVideo := make(map[string]bool)
	addVideo := func(id string) {
		if !seenVideo[id] {
			seenVideo[id] = true
			change.VideoIDs = append(change.VideoIDs, id)
		}
	}

	for _, r := range results {
		change.Playlists = append(change.Playlists, invalidation.PlaylistRef{ID: r.PlaylistID, Slug: r.PlaylistSlug})
		for _, id := range r.ChangedVideoIDs {
			addVideo(id)
		}
	}
	for _, id := range extraVideoIDs {
		addVideo(id)
	}
	return change
}

func playlistRef(pl *models.Playlist) invalidation.PlaylistRef {
	return invalidation.PlaylistRef{ID: pl.PlaylistID, Slug: pl.Slug}
}
