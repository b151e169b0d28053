package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/syncutil"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// VideoSource is the remote API surface the reconciler reads from.
type VideoSource interface {
	FetchPlaylistItems(ctx context.Context, playlistID string, maxResults int) ([]models.RemoteItem, error)
	FetchVideoDetails(ctx context.Context, videoIDs []string) ([]*models.VideoDetails, error)
	FetchPlaylist(ctx context.Context, playlistID string) (*models.RemotePlaylist, error)
}

// Plan is the set of item mutations that brings a playlist in line with one
// remote page.
type Plan struct {
	Creates     []*models.PlaylistItem
	Resurrects  []*models.PlaylistItem
	Repositions []*models.PlaylistItem
	Tombstones  []*models.PlaylistItem
}

// Added counts new and resurrected items.
func (p *Plan) Added() int { return len(p.Creates) + len(p.Resurrects) }

// Updated counts live items whose position changed.
func (p *Plan) Updated() int { return len(p.Repositions) }

// Removed counts tombstoned items.
func (p *Plan) Removed() int { return len(p.Tombstones) }

// Empty reports whether the plan mutates nothing.
func (p *Plan) Empty() bool {
	return p.Added() == 0 && p.Updated() == 0 && p.Removed() == 0
}

// Diff compares remote against local (tombstoned rows included) and returns
// the mutations needed. Local rows are copied, never modified. When a video
// appears more than once on the remote page its first position wins.
func Diff(playlistID string, remote []models.RemoteItem, local []*models.PlaylistItem, now time.Time) *Plan {
	byVideo := make(map[string]*models.PlaylistItem, len(local))
	for _, it := range local {
		byVideo[it.VideoID] = it
	}

	plan := &Plan{}
	seen := make(map[string]bool, len(remote))

	for _, r := range remote {
		if r.VideoID == "" || seen[r.VideoID] {
			continue
		}
		seen[r.VideoID] = true

		existing, ok := byVideo[r.VideoID]
		switch {
		case !ok:
			plan.Creates = append(plan.Creates, &models.PlaylistItem{
				PlaylistID: playlistID,
				VideoID:    r.VideoID,
				Position:   r.Position,
				Title:      r.Title,
				AddedAt:    now,
				UpdatedAt:  now,
			})
		case existing.IsRemoved():
			it := *existing
			it.Position = r.Position
			it.Title = r.Title
			it.RemovedAt = nil
			it.UpdatedAt = now
			plan.Resurrects = append(plan.Resurrects, &it)
		case existing.Position != r.Position:
			it := *existing
			it.Position = r.Position
			it.Title = r.Title
			it.UpdatedAt = now
			plan.Repositions = append(plan.Repositions, &it)
		}
	}

	for _, it := range local {
		if it.IsRemoved() || seen[it.VideoID] {
			continue
		}
		tomb := *it
		removedAt := now
		tomb.RemovedAt = &removedAt
		tomb.UpdatedAt = now
		plan.Tombstones = append(plan.Tombstones, &tomb)
	}

	return plan
}

// ReconcileRequest describes one reconciliation of a tracked playlist.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ReconcileRequest struct {
	Playlist *models.Playlist
	// Items is a pre-fetched page, used when Prefetched is set.
	Items      []models.RemoteItem
	Prefetched bool
	// Details may carry already-fetched video details keyed by video ID.
	Details map[string]*models.VideoDetails
	Trigger models.Trigger
	TraceID string
	// KeepAlive, when set, runs after the page is fetched and before any
	// write. Returning false aborts the run with ErrLeaseLost.
	KeepAlive func(ctx context.Context) (bool, error)
}

// ReconcileResult summarizes one reconciliation.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ReconcileResult struct {
	PlaylistID      string
	PlaylistSlug    string
	TraceID         string
	Status          models.SyncStatus
	Added           int
	Updated         int
	Removed         int
	Unchanged       bool
	Skipped         bool
	ChangedVideoIDs []string
	DeletedVideoIDs []string
	EnrichedIDs     []string
	Errors          []string
	Duration        time.Duration
	History         *models.SyncHistory
}

// Changed reports whether any item mutation was applied.
func (r *ReconcileResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0 || len(r.ChangedVideoIDs) > 0
}

// Reconciler diffs remote playlist pages against the store and applies the
// result atomically.
type Reconciler struct {
	store      repository.Store
	source     VideoSource
	tier       TierFunc
	maxResults int
	now        func() time.Time
}

// NewReconciler creates a Reconciler. maxResults caps fetched pages; zero
// means the whole playlist.
func NewReconciler(store repository.Store, source VideoSource, tier TierFunc, maxResults int) *Reconciler {
	if tier == nil {
		tier = ClassifyTier
	}
	return &Reconciler{
		store:      store,
		source:     source,
		tier:       tier,
		maxResults: maxResults,
		now:        time.Now,
	}
}

// Reconcile runs one reconciliation and always records a SyncHistory row.
// The returned error is non-nil only when the diff could not be applied;
// enrichment and metadata problems surface as a partial result.
func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	start := r.now()
	pl := req.Playlist
	res := &ReconcileResult{
		PlaylistID:   pl.PlaylistID,
		PlaylistSlug: pl.Slug,
		TraceID:      req.TraceID,
	}
	log := logger.WithTrace(req.TraceID).With(zap.String("playlistId", pl.PlaylistID))

	items := req.Items
	if !req.Prefetched {
		fetched, err := r.source.FetchPlaylistItems(ctx, pl.PlaylistID, r.maxResults)
		if err != nil {
			log.Error("Failed to fetch playlist items", zap.Error(err))
			return r.fail(ctx, res, req, start, fmt.Errorf("fetch playlist items: %w", err))
		}
		items = fetched
	}

	if req.KeepAlive != nil {
		held, err := req.KeepAlive(ctx)
		if err == nil && !held {
			err = ErrLeaseLost
		}
		if err != nil {
			log.Warn("Sync lease could not be extended", zap.Error(err))
			return r.fail(ctx, res, req, start, fmt.Errorf("extend sync lease: %w", err))
		}
	}

	fingerprint := syncutil.Fingerprint(items)
	if pl.ContentFingerprint != nil && *pl.ContentFingerprint == fingerprint {
		res.Unchanged = true
		metrics.SyncFingerprintHits.Inc()
		log.Debug("Playlist page unchanged", zap.String("fingerprint", fingerprint))
	} else {
		local, err := r.store.FindPlaylistItems(ctx, pl.PlaylistID)
		if err != nil {
			return r.fail(ctx, res, req, start, fmt.Errorf("load playlist items: %w", err))
		}

		plan := Diff(pl.PlaylistID, items, local, start.UTC())
		deleted, err := r.apply(ctx, pl.PlaylistID, plan)
		if err != nil {
			log.Error("Failed to apply playlist diff", zap.Error(err))
			return r.fail(ctx, res, req, start, fmt.Errorf("apply playlist diff: %w", err))
		}

		res.Added, res.Updated, res.Removed = plan.Added(), plan.Updated(), plan.Removed()
		res.DeletedVideoIDs = deleted
		res.ChangedVideoIDs = changedIDs(plan)
		metrics.SyncMutationsTotal.WithLabelValues("added").Add(float64(res.Added))
		metrics.SyncMutationsTotal.WithLabelValues("updated").Add(float64(res.Updated))
		metrics.SyncMutationsTotal.WithLabelValues("removed").Add(float64(res.Removed))

		enrichIDs := make([]string, 0, plan.Added()+plan.Updated())
		for _, group := range [][]*models.PlaylistItem{plan.Creates, plan.Resurrects, plan.Repositions} {
			for _, it := range group {
				enrichIDs = append(enrichIDs, it.VideoID)
			}
		}
		stubs := r.pendingStubs(ctx, items, plan)
		enrichIDs = append(enrichIDs, stubs...)

		res.EnrichedIDs, res.Errors = r.enrich(ctx, enrichIDs, req.Details, start.UTC())
		for _, id := range stubs {
			if slices.Contains(res.EnrichedIDs, id) {
				res.ChangedVideoIDs = append(res.ChangedVideoIDs, id)
			}
		}

		// A page with unenriched videos keeps its old fingerprint so the
		// next run retries them.
		if len(res.Errors) == 0 {
			if err := r.saveFingerprint(ctx, pl.PlaylistID, fingerprint); err != nil {
				log.Warn("Failed to save playlist fingerprint", zap.Error(err))
			}
		}
	}

	if err := r.refreshMetadata(ctx, pl, len(items), start.UTC()); err != nil {
		log.Warn("Failed to refresh playlist metadata", zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
	}

	res.Status = models.SyncStatusSuccess
	if len(res.Errors) > 0 {
		res.Status = models.SyncStatusPartial
	}
	r.record(ctx, res, req, start)

	log.Info("Playlist reconciled",
		zap.String("status", string(res.Status)),
		zap.Bool("unchanged", res.Unchanged),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("removed", res.Removed),
		zap.Int("deleted_videos", len(res.DeletedVideoIDs)),
		zap.Int("errors", len(res.Errors)))

	return res, nil
}

// apply writes the plan in one transaction and returns the IDs of videos
// deleted because they lost their last membership.
func (r *Reconciler) apply(ctx context.Context, playlistID string, plan *Plan) ([]string, error) {
	var deleted []string

	err := r.store.RunInTx(ctx, func(tx repository.Tx) error {
		deleted = deleted[:0]

		for _, it := range plan.Creates {
			if err := tx.EnsureVideo(ctx, it.VideoID, it.Title); err != nil {
				return err
			}
			if err := tx.CreatePlaylistItem(ctx, it); err != nil {
				return err
			}
			if err := tx.AddMembership(ctx, it.VideoID, playlistID); err != nil {
				return err
			}
		}

		for _, group := range [][]*models.PlaylistItem{plan.Resurrects, plan.Repositions} {
			for _, it := range group {
				if err := tx.UpdatePlaylistItem(ctx, it); err != nil {
					return err
				}
				if err := tx.EnsureVideo(ctx, it.VideoID, it.Title); err != nil {
					return err
				}
				if err := tx.AddMembership(ctx, it.VideoID, playlistID); err != nil {
					return err
				}
			}
		}

		for _, it := range plan.Tombstones {
			if err := tx.UpdatePlaylistItem(ctx, it); err != nil {
				return err
			}
			remaining, err := tx.RemoveMembership(ctx, it.VideoID, playlistID)
			if err != nil {
				return err
			}
			if remaining > 0 {
				continue
			}
			gone, err := tx.DeleteVideoIfOrphaned(ctx, it.VideoID)
			if err != nil {
				return err
			}
			if gone {
				deleted = append(deleted, it.VideoID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Reconciler) saveFingerprint(ctx context.Context, playlistID, fingerprint string) error {
	return r.store.RunInTx(ctx, func(tx repository.Tx) error {
		return tx.SetFingerprint(ctx, playlistID, fingerprint)
	})
}

// pendingStubs returns remote videos the plan leaves alone whose stored row
// never received details, typically after an earlier partial run.
func (r *Reconciler) pendingStubs(ctx context.Context, items []models.RemoteItem, plan *Plan) []string {
	planned := make(map[string]bool, plan.Added()+plan.Updated())
	for _, group := range [][]*models.PlaylistItem{plan.Creates, plan.Resurrects, plan.Repositions} {
		for _, it := range group {
			planned[it.VideoID] = true
		}
	}

	var stubs []string
	for _, item := range items {
		if item.VideoID == "" || planned[item.VideoID] {
			continue
		}
		planned[item.VideoID] = true

		v, err := r.store.FindVideoByVideoID(ctx, item.VideoID)
		if err != nil {
			if !db.IsNotFound(err) {
				logger.Log.Warn("Failed to load video for enrichment check",
					zap.String("videoId", item.VideoID),
					zap.Error(err))
			}
			continue
		}
		if v.IsStub() {
			stubs = append(stubs, item.VideoID)
		}
	}
	return stubs
}

// enrich fetches details for ids in batches, reusing prefetched entries, and
// upserts the resulting videos. It returns the IDs written and one error
// string per failure.
func (r *Reconciler) enrich(ctx context.Context, ids []string, prefetched map[string]*models.VideoDetails, now time.Time) ([]string, []string) {
	if len(ids) == 0 {
		return nil, nil
	}

	details := make(map[string]*models.VideoDetails, len(ids))
	var missing []string
	for _, id := range ids {
		if d, ok := prefetched[id]; ok && d != nil {
			details[id] = d
			continue
		}
		missing = append(missing, id)
	}

	var errs []string
	if len(missing) > 0 {
		fetched, err := r.source.FetchVideoDetails(ctx, missing)
		if err != nil {
			errs = append(errs, fmt.Sprintf("fetch video details: %v", err))
		}
		for _, d := range fetched {
			details[d.VideoID] = d
		}
	}

	var written []string
	for _, id := range ids {
		d, ok := details[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("video %s: no details returned", id))
			continue
		}
		if err := r.store.UpsertVideo(ctx, videoFromDetails(d, r.tier, now)); err != nil {
			errs = append(errs, fmt.Sprintf("video %s: %v", id, err))
			continue
		}
		written = append(written, id)
	}
	return written, errs
}

// refreshMetadata applies the remote playlist descriptor. itemCount always
// comes from the fetched page, so an empty page records zero.
func (r *Reconciler) refreshMetadata(ctx context.Context, pl *models.Playlist, itemCount int, now time.Time) error {
	meta := models.PlaylistMetadata{ItemCount: itemCount}

	var descErr error
	remote, err := r.source.FetchPlaylist(ctx, pl.PlaylistID)
	if err != nil {
		descErr = fmt.Errorf("fetch playlist metadata: %w", err)
	} else {
		meta.Title = remote.Title
		meta.Description = remote.Description
		meta.ThumbnailURL = remote.ThumbnailURL
		meta.ChannelTitle = remote.ChannelTitle
		if remote.Title != "" {
			pl.Title = remote.Title
		}
	}

	if err := r.store.UpdatePlaylist(ctx, pl.PlaylistID, meta, now); err != nil {
		return errors.Join(descErr, fmt.Errorf("update playlist: %w", err))
	}
	return descErr
}

func (r *Reconciler) fail(ctx context.Context, res *ReconcileResult, req ReconcileRequest, start time.Time, cause error) (*ReconcileResult, error) {
	res.Status = models.SyncStatusFailed
	res.Errors = append(res.Errors, cause.Error())
	r.record(ctx, res, req, start)
	return res, cause
}

func (r *Reconciler) record(ctx context.Context, res *ReconcileResult, req ReconcileRequest, start time.Time) {
	res.Duration = r.now().Sub(start)

	h := &models.SyncHistory{
		Status:          res.Status,
		VideosAdded:     res.Added,
		VideosUpdated:   res.Updated,
		VideosRemoved:   res.Removed,
		DurationSeconds: res.Duration.Seconds(),
		PlaylistID:      req.Playlist.PlaylistID,
		PlaylistName:    req.Playlist.Title,
		TraceID:         req.TraceID,
		Trigger:         req.Trigger,
	}
	if len(res.Errors) > 0 {
		msg := strings.Join(res.Errors, "; ")
		h.Error = &msg
	}

	if err := r.store.CreateSyncHistory(ctx, h); err != nil {
		logger.Log.Error("Failed to write sync history",
			zap.String("playlistId", h.PlaylistID),
			zap.Error(err))
	} else {
		res.History = h
	}

	metrics.SyncRunsTotal.WithLabelValues(string(res.Status), string(req.Trigger)).Inc()
	metrics.SyncDuration.Observe(res.Duration.Seconds())
}

func changedIDs(plan *Plan) []string {
	ids := make([]string, 0, plan.Added()+plan.Updated()+plan.Removed())
	for _, group := range [][]*models.PlaylistItem{plan.Creates, plan.Resurrects, plan.Repositions, plan.Tombstones} {
		for _, it := range group {
			ids = append(ids, it.VideoID)
		}
	}
	return ids
}
