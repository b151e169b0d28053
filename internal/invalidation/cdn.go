package invalidation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// MaxPurgeBatch is the CDN API's per-request limit on files or tags.
const MaxPurgeBatch = 30

// PurgeResult summarizes one purge across all batches.
type PurgeResult struct {
	Batches int      `json:"batches"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// CDNPurger purges URLs and cache tags through the Cloudflare zone API.
type CDNPurger struct {
	apiBase   string
	zoneID    string
	token     string
	batchSize int
	timeout   time.Duration
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// NewCDNPurger creates a CDNPurger. A nil client uses http.DefaultClient.
func NewCDNPurger(cfg config.CDNConfig, client *http.Client) *CDNPurger {
	if client == nil {
		client = http.DefaultClient
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > MaxPurgeBatch {
		batch = MaxPurgeBatch
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	const name = "cdn-purge"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("CDN circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &CDNPurger{
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		zoneID:    cfg.ZoneID,
		token:     cfg.APIToken,
		batchSize: batch,
		timeout:   timeout,
		client:    client,
		breaker:   breaker,
	}
}

// Enabled reports whether credentials are configured.
func (p *CDNPurger) Enabled() bool {
	return p.zoneID != "" && p.token != ""
}

// Purge sends urls and tags in batches of at most batchSize. A failed batch
// does not stop the remaining ones.
func (p *CDNPurger) Purge(ctx context.Context, urls, tags []string) PurgeResult {
	var res PurgeResult
	if !p.Enabled() {
		return res
	}

	send := func(kind string, values []string) {
		for start := 0; start < len(values); start += p.batchSize {
			end := min(start+p.batchSize, len(values))
			res.Batches++
			if err := p.purgeBatch(ctx, map[string][]string{kind: values[start:end]}); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, err.Error())
				metrics.InvalidationTotal.WithLabelValues("cdn", "error").Inc()
				logger.Log.Warn("CDN purge batch failed",
					zap.String("kind", kind),
					zap.Int("size", end-start),
					zap.Error(err))
				continue
			}
			metrics.InvalidationTotal.WithLabelValues("cdn", "success").Inc()
		}
	}

	send("files", urls)
	send("tags", tags)
	return res
}

type purgeResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *CDNPurger) purgeBatch(ctx context.Context, body map[string][]string) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		payload, err := json.Marshal(body)
		if err != nil {
			return struct{}{}, fmt.Errorf("marshal purge body: %w", err)
		}

		url := fmt.Sprintf("%s/zones/%s/purge_cache", p.apiBase, p.zoneID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, fmt.Errorf("build purge request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("purge request: %w", err)
		}
		defer resp.Body.Close()

		var out purgeResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if resp.StatusCode/100 != 2 || !out.Success {
			msg := ""
			if len(out.Errors) > 0 {
				msg = out.Errors[0].Message
			}
			return struct{}{}, fmt.Errorf("purge rejected: status %d %s", resp.StatusCode, msg)
		}
		return struct{}{}, nil
	})
	return err
}
