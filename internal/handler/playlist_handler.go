package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// PlaylistReader is the read side of the store used by the gallery endpoint.
type PlaylistReader interface {
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)
	FindPlaylistItems(ctx context.Context, playlistID string) ([]*models.PlaylistItem, error)
}

// ViewStore caches rendered view models.
type ViewStore interface {
	Get(key string) (any, bool)
	Set(key string, value any, cost int64) bool
}

// PlaylistView is the gallery payload for one playlist.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type PlaylistView struct {
	Playlist *models.Playlist      `json:"playlist"`
	Items    []*models.PlaylistItem `json:"items"`
	Count    int                   `json:"count"`
}

// PlaylistHandler serves playlist galleries through the view cache. Entries
// are dropped by the invalidation dispatcher when a sync changes the playlist.
type PlaylistHandler struct {
	store PlaylistReader
	views ViewStore
}

// NewPlaylistHandler creates a PlaylistHandler. views may be nil.
func NewPlaylistHandler(store PlaylistReader, views ViewStore) *PlaylistHandler {
	return &PlaylistHandler{store: store, views: views}
}

// Items returns the live items of a playlist ordered by position.
func (h *PlaylistHandler) Items(c *gin.Context) {
	playlistID := c.Param("playlistId")
	key := cache.PlaylistKey(playlistID)

	if h.views != nil {
		if v, ok := h.views.Get(key); ok {
			if view, ok := v.(*PlaylistView); ok {
				c.Header("X-Cache", "HIT")
				c.JSON(http.StatusOK, view)
				return
			}
		}
	}

	pl, err := h.store.GetPlaylist(c.Request.Context(), playlistID)
	if err != nil {
		if db.IsNotFound(err) {
			handleError(c, service.ErrPlaylistNotFound)
			return
		}
		handleError(c, err)
		return
	}

	items, err := h.store.FindPlaylistItems(c.Request.Context(), playlistID)
	if err != nil {
		handleError(c, err)
		return
	}

	live := make([]*models.PlaylistItem, 0, len(items))
	for _, it := range items {
		if !it.IsRemoved() {
			live = append(live, it)
		}
	}
	view := &PlaylistView{Playlist: pl, Items: live, Count: len(live)}

	if h.views != nil && !h.views.Set(key, view, int64(1+len(live))) {
		logger.Log.Debug("View cache rejected entry", zap.String("key", key))
	}
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, view)
}
