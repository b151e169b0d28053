// Package handler provides the gin HTTP handlers.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/parser"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/validation"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const (
	signatureHeader       = "X-Hub-Signature"
	defaultMaxPayloadSize = 1 << 20
)

// NotificationProcessor handles a verified push notification.
type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, n *parser.Notification) (*models.WebhookResponseDTO, error)
}

// WebhookHandler serves the hub subscription handshake and signed
// notifications.
type WebhookHandler struct {
	processor      NotificationProcessor
	secret         string
	maxPayloadSize int64
}

// NewWebhookHandler creates a WebhookHandler. secret signs every
// notification; requests are rejected while it is empty.
func NewWebhookHandler(processor NotificationProcessor, secret string, maxPayloadSize int64) *WebhookHandler {
	if maxPayloadSize <= 0 {
		maxPayloadSize = defaultMaxPayloadSize
	}
	return &WebhookHandler{
		processor:      processor,
		secret:         secret,
		maxPayloadSize: maxPayloadSize,
	}
}

// Verify answers the hub's subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	challenge := c.Query("hub.challenge")

	if challenge == "" {
		writeError(c, http.StatusBadRequest, "missing hub.challenge parameter")
		return
	}
	if mode != "subscribe" && mode != "unsubscribe" {
		writeError(c, http.StatusNotFound, "unknown hub.mode")
		return
	}

	logger.Log.Info("Subscription verification",
		zap.String("mode", mode),
		zap.String("topic", c.Query("hub.topic")),
		zap.String("leaseSeconds", c.Query("hub.lease_seconds")))

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(challenge))
}

// Receive verifies and processes a notification. The raw body is read before
// anything else so the signature covers exactly what was sent.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPayloadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhookRequestsTotal.WithLabelValues("too_large").Inc()
			writeError(c, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := validation.VerifySignature(h.secret, body, c.GetHeader(signatureHeader)); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("rejected").Inc()
		logger.Log.Warn("Webhook signature rejected",
			zap.Error(err),
			zap.String("clientIp", c.ClientIP()))
		writeError(c, http.StatusUnauthorized, "signature verification failed")
		return
	}

	n, err := parser.ParseNotification(body)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("invalid").Inc()
		logger.Log.Warn("Unparseable notification", zap.Error(err))
		writeError(c, http.StatusBadRequest, "invalid notification feed")
		return
	}
	n.VideoIDs = wellFormed(n.VideoIDs)
	n.DeletedVideoIDs = wellFormed(n.DeletedVideoIDs)

	resp, err := h.processor.ProcessNotification(c.Request.Context(), n)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func wellFormed(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if validation.IsValidVideoID(id) {
			out = append(out, id)
			continue
		}
		logger.Log.Warn("Dropping malformed video ID from notification", zap.String("videoId", id))
	}
	return out
}
