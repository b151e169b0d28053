package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/validation"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// RevalidateHandler exposes the on-demand invalidation endpoint used by the
// CMS when content is published, hidden or deleted.
type RevalidateHandler struct {
	invalidator service.Invalidator
	secret      []byte
}

// NewRevalidateHandler creates a RevalidateHandler.
func NewRevalidateHandler(invalidator service.Invalidator, secret string) *RevalidateHandler {
	return &RevalidateHandler{invalidator: invalidator, secret: []byte(secret)}
}

// Revalidate checks x-revalidate-key, then dispatches the change to every
// cache tier and reports aggregate counts.
func (h *RevalidateHandler) Revalidate(c *gin.Context) {
	key := []byte(c.GetHeader(invalidation.RevalidateKeyHeader))
	if len(h.secret) == 0 || subtle.ConstantTimeCompare(key, h.secret) != 1 {
		logger.Log.Warn("Revalidation rejected", zap.String("clientIp", c.ClientIP()))
		writeError(c, http.StatusUnauthorized, "invalid revalidation key")
		return
	}

	var req models.RevalidateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	if err := validation.ValidateRevalidateRequest(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	report := h.invalidator.Dispatch(c.Request.Context(), invalidation.Change{
		Type:       invalidation.ChangeType(req.Type),
		Slug:       req.Slug,
		Path:       req.Path,
		Categories: req.Categories,
	})

	c.JSON(http.StatusOK, models.RevalidateResponseDTO{
		Revalidated: len(report.Revalidated),
		Failed:      len(report.Failed),
		Paths:       report.Paths,
		Timestamp:   time.Now().UTC(),
	})
}
