package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Syncer runs reconciliations on demand.
type Syncer interface {
	SyncPlaylist(ctx context.Context, playlistID string, trigger models.Trigger) (*service.ReconcileResult, error)
	SyncAll(ctx context.Context, trigger models.Trigger) (*service.BulkResult, error)
}

// HistoryLister reads the sync audit trail.
type HistoryLister interface {
	ListSyncHistory(ctx context.Context, playlistID string, limit int) ([]*models.SyncHistory, error)
}

// SyncHandler serves the admin sync trigger and history endpoints.
type SyncHandler struct {
	syncer  Syncer
	history HistoryLister
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(syncer Syncer, history HistoryLister) *SyncHandler {
	return &SyncHandler{syncer: syncer, history: history}
}

// SyncAll reconciles every active playlist.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	bulk, err := h.syncer.SyncAll(c.Request.Context(), models.TriggerManual)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SyncResponseDTO{
		TraceID:   bulk.TraceID,
		Succeeded: bulk.Succeeded,
		Partial:   bulk.Partial,
		Failed:    bulk.Failed,
		Skipped:   bulk.Skipped,
		Added:     bulk.Added,
		Updated:   bulk.Updated,
		Removed:   bulk.Removed,
		Errors:    nonNil(bulk.Errors),
		Timestamp: time.Now().UTC(),
	})
}

// SyncPlaylist reconciles one playlist. A held lease answers 409 and a
// failed reconciliation 502, both with the usual body.
func (h *SyncHandler) SyncPlaylist(c *gin.Context) {
	res, err := h.syncer.SyncPlaylist(c.Request.Context(), c.Param("playlistId"), models.TriggerManual)
	if err != nil && res == nil {
		handleError(c, err)
		return
	}

	resp := models.SyncResponseDTO{
		TraceID:   res.TraceID,
		Added:     res.Added,
		Updated:   res.Updated,
		Removed:   res.Removed,
		Errors:    nonNil(res.Errors),
		Timestamp: time.Now().UTC(),
	}

	status := http.StatusOK
	switch {
	case res.Skipped:
		resp.Skipped = 1
		status = http.StatusConflict
	case res.Status == models.SyncStatusFailed:
		resp.Failed = 1
		status = http.StatusBadGateway
	case res.Status == models.SyncStatusPartial:
		resp.Partial = 1
	default:
		resp.Succeeded = 1
	}
	c.JSON(status, resp)
}

// History lists recent sync history rows, newest first.
func (h *SyncHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := h.history.ListSyncHistory(c.Request.Context(), c.Query("playlistId"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	if rows == nil {
		rows = []*models.SyncHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"history": rows, "count": len(rows)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
