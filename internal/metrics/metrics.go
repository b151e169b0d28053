// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_sync_runs_total",
			Help: "Reconciliation attempts by outcome and trigger",
		},
		[]string{"status", "trigger"},
	)

	SyncMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_sync_mutations_total",
			Help: "Playlist item mutations applied, by kind (added, updated, removed)",
		},
		[]string{"kind"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playlist_sync_duration_seconds",
			Help:    "Wall time of one playlist reconciliation",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncFingerprintHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_sync_fingerprint_hits_total",
			Help: "Reconciliations skipped because the page fingerprint was unchanged",
		},
	)

	LeaseDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_sync_lease_denials_total",
			Help: "Lease acquisitions refused because another run holds the playlist",
		},
	)

	// Remote API
	YouTubeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youtube_api_requests_total",
			Help: "YouTube Data API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	YouTubeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youtube_api_retries_total",
			Help: "Retried YouTube Data API calls by operation",
		},
		[]string{"operation"},
	)

	YouTubeQuotaUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "youtube_api_quota_used_units",
			Help: "Estimated quota units consumed since UTC midnight",
		},
	)

	// Webhook
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Push notifications received, by outcome",
		},
		[]string{"outcome"},
	)

	// Invalidation
	InvalidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidation_total",
			Help: "Invalidation calls per layer (memory, cdn, revalidate) and outcome",
		},
		[]string{"layer", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Events
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_published_total",
			Help: "SyncEvent publishes by outcome",
		},
		[]string{"outcome"},
	)

	// Hub subscriptions
	HubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsubhub_requests_total",
			Help: "Hub subscribe/unsubscribe requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)
)
