// Package models contains the data models and DTOs for the playlist sync service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the outcome recorded on a SyncHistory row.
type SyncStatus string

// SyncStatus constants define the possible outcomes of one reconciliation attempt.
const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// Trigger names what started a reconciliation.
type Trigger string

// Trigger constants.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerWebhook   Trigger = "webhook"
)

// Tier classifies a video by engagement and recency.
type Tier string

// Tier constants.
const (
	TierHot      Tier = "hot"
	TierTrending Tier = "trending"
	TierStandard Tier = "standard"
)

// Statistics is the last-seen engagement snapshot for a video.
type Statistics struct {
	ViewCount    int64 `json:"viewCount"`
	LikeCount    int64 `json:"likeCount"`
	CommentCount int64 `json:"commentCount"`
}

// VideoStatus mirrors the remote status flags.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type VideoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
	Embeddable    bool   `json:"embeddable"`
	MadeForKids   bool   `json:"madeForKids"`
	UploadStatus  string `json:"uploadStatus"`
	License       string `json:"license"`
}

// Video is one remote video's mirrored metadata.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Video struct {
	VideoID         string            `json:"videoId"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	PublishedAt     time.Time         `json:"publishedAt"`
	ChannelID       string            `json:"channelId"`
	ChannelTitle    string            `json:"channelTitle"`
	Tags            []string          `json:"tags"`
	CategoryID      string            `json:"categoryId"`
	Duration        string            `json:"duration"`
	DurationSeconds int               `json:"durationSeconds"`
	Thumbnails      map[string]string `json:"thumbnails"`
	Statistics      Statistics        `json:"statistics"`
	Status          VideoStatus       `json:"status"`
	IsShort         bool              `json:"isShort"`
	Tier            Tier              `json:"tier"`
	Playlists       []string          `json:"playlists"`
	LastSyncedAt    time.Time         `json:"lastSyncedAt"`
	SyncVersion     int64             `json:"syncVersion"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// IsStub reports whether the row was created from a playlist item and has
// never received remote details.
func (v *Video) IsStub() bool {
	return v.SyncVersion == 0
}

// InPlaylist reports whether the video is currently a member of playlistID.
func (v *Video) InPlaylist(playlistID string) bool {
	for _, id := range v.Playlists {
		if id == playlistID {
			return true
		}
	}
	return false
}

// PlaylistItem is one (playlist, video) membership record.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type PlaylistItem struct {
	PlaylistID string     `json:"playlistId"`
	VideoID    string     `json:"videoId"`
	Position   int        `json:"position"`
	Title      string     `json:"title"`
	AddedAt    time.Time  `json:"addedAt"`
	RemovedAt  *time.Time `json:"removedAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsRemoved reports whether the item is tombstoned.
func (i *PlaylistItem) IsRemoved() bool {
	return i.RemovedAt != nil
}

// Playlist is a tracked remote playlist.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Playlist struct {
	PlaylistID         string     `json:"playlistId"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ThumbnailURL       string     `json:"thumbnailUrl"`
	ItemCount          int        `json:"itemCount"`
	ChannelTitle       string     `json:"channelTitle"`
	IsActive           bool       `json:"isActive"`
	Slug               string     `json:"slug"`
	SyncLeaseUntil     *time.Time `json:"syncLeaseUntil"`
	SyncLeaseOwner     *string    `json:"syncLeaseOwner"`
	ContentFingerprint *string    `json:"contentFingerprint"`
	LastSyncedAt       *time.Time `json:"lastSyncedAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// LeaseFree reports whether requester may take the sync lease at now.
func (p *Playlist) LeaseFree(requester string, now time.Time) bool {
	if p.SyncLeaseUntil == nil || !p.SyncLeaseUntil.After(now) {
		return true
	}
	return p.SyncLeaseOwner != nil && *p.SyncLeaseOwner == requester
}

// PlaylistMetadata is the remote descriptor applied after a reconciliation.
type PlaylistMetadata struct {
	Title        string
	Description  string
	ThumbnailURL string
	ChannelTitle string
	ItemCount    int
}

// SyncHistory is an append-only audit record of one reconciliation attempt.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type SyncHistory struct {
	ID              uuid.UUID  `json:"id"`
	Status          SyncStatus `json:"status"`
	VideosAdded     int        `json:"videosAdded"`
	VideosUpdated   int        `json:"videosUpdated"`
	VideosRemoved   int        `json:"videosRemoved"`
	DurationSeconds float64    `json:"durationSeconds"`
	PlaylistID      string     `json:"playlistId"`
	PlaylistName    string     `json:"playlistName"`
	Error           *string    `json:"error"`
	TraceID         string     `json:"traceId"`
	Trigger         Trigger    `json:"trigger"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RemoteItem is one entry of a fetched playlist page.
type RemoteItem struct {
	VideoID  string `json:"videoId"`
	Position int    `json:"position"`
	Title    string `json:"title"`
}

// RemotePlaylist is the fetched playlist descriptor.
type RemotePlaylist struct {
	PlaylistID   string
	Title        string
	Description  string
	ThumbnailURL string
	ChannelTitle string
	ItemCount    int
}

// VideoDetails is the full remote metadata for one video.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type VideoDetails struct {
	VideoID      string
	Title        string
	Description  string
	PublishedAt  time.Time
	ChannelID    string
	ChannelTitle string
	Tags         []string
	CategoryID   string
	Duration     string
	Thumbnails   map[string]string
	Statistics   Statistics
	Status       VideoStatus
}

// SyncEvent is published after every reconciliation attempt.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type SyncEvent struct {
	EventID         uuid.UUID  `json:"eventId"`
	PlaylistID      string     `json:"playlistId"`
	Status          SyncStatus `json:"status"`
	Trigger         Trigger    `json:"trigger"`
	TraceID         string     `json:"traceId"`
	VideosAdded     int        `json:"videosAdded"`
	VideosUpdated   int        `json:"videosUpdated"`
	VideosRemoved   int        `json:"videosRemoved"`
	ChangedVideoIDs []string   `json:"changedVideoIds"`
	OccurredAt      time.Time  `json:"occurredAt"`
}

// WebhookResponseDTO is returned after a push notification was processed.
type WebhookResponseDTO struct {
	VideosProcessed int       `json:"videosProcessed"`
	Timestamp       time.Time `json:"timestamp"`
}

// RevalidateRequestDTO is the body of the revalidation endpoint.
type RevalidateRequestDTO struct {
	Type       string   `json:"type" binding:"required,oneof=post category homepage"`
	Slug       string   `json:"slug,omitempty"`
	Path       string   `json:"path,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// RevalidateResponseDTO reports aggregate invalidation counts.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RevalidateResponseDTO struct {
	Revalidated int       `json:"revalidated"`
	Failed      int       `json:"failed"`
	Paths       []string  `json:"paths"`
	Timestamp   time.Time `json:"timestamp"`
}

// SyncResponseDTO is returned by the admin trigger endpoints.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type SyncResponseDTO struct {
	TraceID   string    `json:"traceId"`
	Succeeded int       `json:"succeeded"`
	Partial   int       `json:"partial"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Added     int       `json:"videosAdded"`
	Updated   int       `json:"videosUpdated"`
	Removed   int       `json:"videosRemoved"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents an error response.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}
