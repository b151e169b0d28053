package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      c.Request.URL.Path,
	})
}

// handleError maps service errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var processingErr *service.ProcessingError

	switch {
	case errors.As(err, &validationErr):
		logger.Log.Warn("Validation error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPlaylistNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.As(err, &processingErr):
		logger.Log.Error("Processing error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		writeError(c, http.StatusInternalServerError, processingErr.Message)
	default:
		logger.Log.Error("Unexpected error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		writeError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
