package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubHealth bool

func (s stubHealth) IsHealthy() bool { return bool(s) }

func TestHealthHandler_LivenessProbe(t *testing.T) {
	handler := NewHealthHandler(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health/live", nil)

	handler.LivenessProbe(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"UP"`)
}

func TestHealthHandler_ReadinessProbe(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		publisher  HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"store up, no broker", stubPinger{}, nil, http.StatusOK, `"database":"healthy"`},
		{"store and broker up", stubPinger{}, stubHealth(true), http.StatusOK, `"rabbitmq":"healthy"`},
		{"store down", stubPinger{err: errors.New("connection refused")}, stubHealth(true), http.StatusServiceUnavailable, `"database":"unhealthy"`},
		{"broker down", stubPinger{}, stubHealth(false), http.StatusServiceUnavailable, `"rabbitmq":"unhealthy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.store, tt.publisher)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health/ready", nil)

			handler.ReadinessProbe(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
