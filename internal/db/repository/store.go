// Package repository is the persistence adapter for videos, playlists,
// playlist items and sync history.
package repository

import (
	"context"
	"time"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

// Store is the persistence boundary used by the sync core. Lookups that find
// nothing return an error wrapping db.ErrNotFound.
type Store interface {
	// FindVideoByVideoID retrieves a single video by its external ID.
	FindVideoByVideoID(ctx context.Context, videoID string) (*models.Video, error)

	// UpsertVideo creates or updates video metadata and increments its
	// SyncVersion. Playlist membership is never written by this call.
	UpsertVideo(ctx context.Context, video *models.Video) error

	// DeleteVideo removes a video row.
	DeleteVideo(ctx context.Context, videoID string) error

	// FindPlaylistItems returns every item of a playlist, tombstoned ones included.
	FindPlaylistItems(ctx context.Context, playlistID string) ([]*models.PlaylistItem, error)

	// CreatePlaylist registers a tracked playlist. Existing rows are left untouched.
	CreatePlaylist(ctx context.Context, playlist *models.Playlist) error

	// GetPlaylist retrieves a tracked playlist.
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)

	// ListActivePlaylists returns playlists with IsActive set, ordered by ID.
	ListActivePlaylists(ctx context.Context) ([]*models.Playlist, error)

	// UpdatePlaylist applies remote metadata and stamps LastSyncedAt.
	UpdatePlaylist(ctx context.Context, playlistID string, meta models.PlaylistMetadata, syncedAt time.Time) error

	// CreateSyncHistory appends an audit record.
	CreateSyncHistory(ctx context.Context, history *models.SyncHistory) error

	// ListSyncHistory returns the newest records first. An empty playlistID
	// lists every playlist.
	ListSyncHistory(ctx context.Context, playlistID string, limit int) ([]*models.SyncHistory, error)

	// AcquireLease atomically sets the lease fields when the lease is unset,
	// expired at now, or already held by owner.
	AcquireLease(ctx context.Context, playlistID, owner string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseLease clears the lease fields if owner still holds them.
	ReleaseLease(ctx context.Context, playlistID, owner string) error

	// RunInTx runs fn in a single transaction. A non-nil error from fn rolls
	// back every write made through the Tx.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Tx holds the mutations a reconciliation applies atomically.
type Tx interface {
	CreatePlaylistItem(ctx context.Context, item *models.PlaylistItem) error

	// UpdatePlaylistItem writes position, title and RemovedAt.
	UpdatePlaylistItem(ctx context.Context, item *models.PlaylistItem) error

	// EnsureVideo inserts a stub video row if none exists yet.
	EnsureVideo(ctx context.Context, videoID, title string) error

	// AddMembership adds playlistID to the video's membership set. Idempotent.
	AddMembership(ctx context.Context, videoID, playlistID string) error

	// RemoveMembership drops playlistID from the set and returns how many
	// memberships remain. A missing video reports zero.
	RemoveMembership(ctx context.Context, videoID, playlistID string) (int, error)

	// DeleteVideoIfOrphaned deletes the video only when its membership set is empty.
	DeleteVideoIfOrphaned(ctx context.Context, videoID string) (bool, error)

	SetFingerprint(ctx context.Context, playlistID, fingerprint string) error
}
