package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

type recordingInvalidator struct {
	changes []invalidation.Change
	report  invalidation.Report
}

func (r *recordingInvalidator) Dispatch(_ context.Context, change invalidation.Change) invalidation.Report {
	r.changes = append(r.changes, change)
	return r.report
}

func newRevalidateRouter(inv *recordingInvalidator, secret string) *gin.Engine {
	h := NewRevalidateHandler(inv, secret)
	r := gin.New()
	r.POST("/api/revalidate", h.Revalidate)
	return r
}

func postRevalidate(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-revalidate-key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRevalidateHandler_Dispatches(t *testing.T) {
	inv := &recordingInvalidator{report: invalidation.Report{
		Paths:       []string{"/news/budget", "/news", "/"},
		Revalidated: []string{"post:budget", "category:/news"},
		Failed:      []string{"homepage:/"},
	}}
	r := newRevalidateRouter(inv, "s3cret")

	w := postRevalidate(r, "s3cret", `{"type":"post","slug":"budget","categories":["nation"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.RevalidateResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Revalidated)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []string{"/news/budget", "/news", "/"}, resp.Paths)

	require.Len(t, inv.changes, 1)
	assert.Equal(t, invalidation.ChangePost, inv.changes[0].Type)
	assert.Equal(t, "budget", inv.changes[0].Slug)
	assert.Equal(t, []string{"nation"}, inv.changes[0].Categories)
}

func TestRevalidateHandler_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		key        string
		body       string
		wantStatus int
	}{
		{"wrong key", "s3cret", "nope", `{"type":"homepage"}`, http.StatusUnauthorized},
		{"missing key", "s3cret", "", `{"type":"homepage"}`, http.StatusUnauthorized},
		{"no secret configured", "", "anything", `{"type":"homepage"}`, http.StatusUnauthorized},
		{"unknown type", "s3cret", "s3cret", `{"type":"author"}`, http.StatusBadRequest},
		{"post without slug", "s3cret", "s3cret", `{"type":"post"}`, http.StatusBadRequest},
		{"malformed json", "s3cret", "s3cret", `{"type":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvalidator{}
			w := postRevalidate(newRevalidateRouter(inv, tt.secret), tt.key, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, inv.changes)
		})
	}
}
