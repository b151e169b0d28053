// Package middleware contains gin middleware shared by the HTTP surface.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const (
	headerAPIKey = "X-API-Key"
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
)

// APIKeyAuth guards admin endpoints with static API keys.
type APIKeyAuth struct {
	apiKeys [][]byte
}

// NewAPIKeyAuth creates the middleware. With no keys configured every request
// is rejected.
func NewAPIKeyAuth(apiKeys []string) *APIKeyAuth {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return &APIKeyAuth{apiKeys: keys}
}

// Handler returns the gin middleware. Keys are read from X-API-Key first,
// then from an Authorization bearer token.
func (a *APIKeyAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.valid(extractAPIKey(c.Request)) {
			logger.Log.Warn("Unauthorized request",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("clientIp", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Timestamp: time.Now().UTC(),
				Status:    http.StatusUnauthorized,
				Error:     "Unauthorized",
				Message:   "missing or invalid API key",
				Path:      c.Request.URL.Path,
			})
			return
		}
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(headerAPIKey); key != "" {
		return key
	}
	if auth := r.Header.Get(headerAuth); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return ""
}

func (a *APIKeyAuth) valid(provided string) bool {
	if provided == "" {
		return false
	}
	match := 0
	for _, key := range a.apiKeys {
		match |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return match == 1
}
