package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// DefaultLeaseDuration bounds how long one reconciliation may hold a playlist.
const DefaultLeaseDuration = 30 * time.Second

var (
	// ErrPlaylistNotFound is returned for playlists that are not tracked.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrLeaseLost is returned when a run can no longer extend its lease.
	ErrLeaseLost = errors.New("sync lease lost")
)

// LeaseManager grants time-boxed per-playlist sync leases. Leases expire on
// their own, so Release is only an early unlock.
type LeaseManager struct {
	store repository.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLeaseManager creates a LeaseManager. A non-positive ttl uses
// DefaultLeaseDuration.
func NewLeaseManager(store repository.Store, ttl time.Duration) *LeaseManager {
	if ttl <= 0 {
		ttl = DefaultLeaseDuration
	}
	return &LeaseManager{store: store, ttl: ttl, now: time.Now}
}

// Acquire takes the lease on playlistID for requesterID. It returns false
// without error when another requester holds an unexpired lease; the holder
// itself may re-acquire, which extends the lease. A non-positive d uses the
// manager's default duration.
func (m *LeaseManager) Acquire(ctx context.Context, playlistID, requesterID string, d time.Duration) (bool, error) {
	if d <= 0 {
		d = m.ttl
	}

	ok, err := m.store.AcquireLease(ctx, playlistID, requesterID, m.now().UTC(), d)
	if err != nil {
		if db.IsNotFound(err) {
			return false, fmt.Errorf("acquire lease %s: %w", playlistID, ErrPlaylistNotFound)
		}
		return false, fmt.Errorf("acquire lease %s: %w", playlistID, err)
	}
	if !ok {
		metrics.LeaseDenialsTotal.Inc()
		logger.Log.Debug("Sync lease held by another run",
			zap.String("playlistId", playlistID),
			zap.String("requester", requesterID))
	}
	return ok, nil
}

// Release clears the lease if requesterID still owns it. Failures are logged
// and otherwise ignored.
func (m *LeaseManager) Release(ctx context.Context, playlistID, requesterID string) {
	if err := m.store.ReleaseLease(ctx, playlistID, requesterID); err != nil {
		logger.Log.Warn("Failed to release sync lease",
			zap.String("playlistId", playlistID),
			zap.String("requester", requesterID),
			zap.Error(err))
	}
}
