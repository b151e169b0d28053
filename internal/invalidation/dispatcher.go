package invalidation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// ViewCache drops keys from the in-process cache.
type ViewCache interface {
	Invalidate(keys ...string) int
}

// Purger purges absolute URLs and cache tags at the CDN.
type Purger interface {
	Enabled() bool
	Purge(ctx context.Context, urls, tags []string) PurgeResult
}

// PageRevalidator regenerates frontend pages.
type PageRevalidator interface {
	Revalidate(ctx context.Context, target Target) error
}

// Report is the outcome of one Dispatch across all layers.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Report struct {
	Paths        []string    `json:"paths"`
	KeysDropped  int         `json:"keysDropped"`
	CDN          PurgeResult `json:"cdn"`
	Revalidated  []string    `json:"revalidated"`
	Failed       []string    `json:"failed"`
	Errors       []string    `json:"errors,omitempty"`
	DispatchedAt time.Time   `json:"dispatchedAt"`
}

// OK reports whether every layer succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0 && r.CDN.Failed == 0
}

// Dispatcher fans a Change out to the view cache, the CDN and the
// revalidation endpoint, in that order. A failing layer never blocks the
// layers after it.
type Dispatcher struct {
	router      *Router
	views       ViewCache
	cdn         Purger
	pages       PageRevalidator
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithViewCache sets the in-process cache layer.
func WithViewCache(v ViewCache) Option { return func(d *Dispatcher) { d.views = v } }

// WithPurger sets the CDN layer.
func WithPurger(p Purger) Option { return func(d *Dispatcher) { d.cdn = p } }

// WithRevalidator sets the page regeneration layer.
func WithRevalidator(r PageRevalidator) Option { return func(d *Dispatcher) { d.pages = r } }

// NewDispatcher creates a Dispatcher. Layers not supplied are skipped.
func NewDispatcher(router *Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{router: router, concurrency: 4}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Router returns the path router.
func (d *Dispatcher) Router() *Router { return d.router }

// Dispatch invalidates everything change touches. It never returns an error;
// failures are recorded in the Report.
func (d *Dispatcher) Dispatch(ctx context.Context, change Change) Report {
	plan := d.router.Plan(change)
	report := Report{Paths: plan.Paths, DispatchedAt: time.Now().UTC()}

	if d.views != nil && len(plan.CacheKeys) > 0 {
		report.KeysDropped = d.views.Invalidate(plan.CacheKeys...)
		metrics.InvalidationTotal.WithLabelValues("memory", "success").Inc()
	}

	if d.cdn != nil && d.cdn.Enabled() {
		report.CDN = d.cdn.Purge(ctx, plan.URLs, plan.Tags)
		report.Errors = append(report.Errors, report.CDN.Errors...)
	}

	if d.pages != nil && len(plan.Targets) > 0 {
		d.revalidate(ctx, plan.Targets, &report)
	}

	logger.Log.Info("Invalidation dispatched",
		zap.String("type", string(change.Type)),
		zap.Strings("paths", report.Paths),
		zap.Int("keys_dropped", report.KeysDropped),
		zap.Int("cdn_batches", report.CDN.Batches),
		zap.Int("revalidated", len(report.Revalidated)),
		zap.Int("failed", len(report.Failed)))

	return report
}

func (d *Dispatcher) revalidate(ctx context.Context, targets []Target, report *Report) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, target := range targets {
		g.Go(func() error {
			err := d.pages.Revalidate(ctx, target)

			mu.Lock()
			defer mu.Unlock()
			name := describe(target)
			if err != nil {
				report.Failed = append(report.Failed, name)
				report.Errors = append(report.Errors, err.Error())
				metrics.InvalidationTotal.WithLabelValues("revalidate", "error").Inc()
				logger.Log.Warn("Revalidation failed", zap.String("target", name), zap.Error(err))
				return nil
			}
			report.Revalidated = append(report.Revalidated, name)
			metrics.InvalidationTotal.WithLabelValues("revalidate", "success").Inc()
			return nil
		})
	}
	_ = g.Wait()
}
