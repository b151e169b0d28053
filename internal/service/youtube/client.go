// Package youtube is the retrying, rate-limited client for the YouTube Data API.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const (
	// MaxBatchSize is the API's hard limit on IDs per videos.list call.
	MaxBatchSize = 50

	defaultMaxAttempts = 3
)

var (
	// ErrRetriesExhausted wraps the last transient error once every attempt failed.
	ErrRetriesExhausted = errors.New("youtube: retries exhausted")

	// ErrNotFound is returned when the API answers with no matching resource.
	ErrNotFound = errors.New("youtube: resource not found")
)

// retryableReasons are the 403 reasons that signal quota or rate limiting.
var retryableReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

// placeholderTitles mark playlist entries whose video is no longer viewable.
var placeholderTitles = map[string]bool{
	"Deleted video": true,
	"Private video": true,
}

// QuotaRecorder receives the estimated cost of every API call made.
type QuotaRecorder interface {
	Record(operation string, cost int)
}

// Config holds the settings NewClient needs.
type Config struct {
	APIKey            string
	Endpoint          string // overrides the API base URL, used in tests
	RequestsPerSecond float64
}

// Client wraps the YouTube Data API v3 service.
type Client struct {
	service     *youtube.Service
	limiter     *rate.Limiter
	quota       QuotaRecorder
	newBackOff  func() backoff.BackOff
	maxAttempts int
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBackOff replaces the retry schedule. Tests pass a zero backoff.
func WithBackOff(f func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = f }
}

// WithQuota records call costs on q.
func WithQuota(q QuotaRecorder) ClientOption {
	return func(c *Client) { c.quota = q }
}

type noopQuota struct{}

func (noopQuota) Record(string, int) {}

// NewClient creates a new YouTube API client.
func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	svcOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := youtube.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		service:     service,
		limiter:     rate.NewLimiter(limit, 1),
		quota:       noopQuota{},
		newBackOff:  DefaultBackOff,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DefaultBackOff waits 1s, 2s, 4s ... capped at 5s, each with ±30% jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	b.RandomizationFactor = 0.3
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// IsRetryable reports whether err is a rate-limit or transient server signal.
func IsRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Code == 429, apiErr.Code >= 500:
		return true
	case apiErr.Code == 403:
		for _, item := range apiErr.Errors {
			if retryableReasons[item.Reason] {
				return true
			}
		}
	}
	return false
}

// call runs fn with the retry policy. Non-retryable errors return after the
// first attempt.
func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), //nolint:gosec // small positive constant
		ctx,
	)

	op := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.quota.Record(operation, quota.CostList)

		err := fn()
		if err == nil {
			metrics.YouTubeRequestsTotal.WithLabelValues(operation, "success").Inc()
			return nil
		}
		if !IsRetryable(err) {
			metrics.YouTubeRequestsTotal.WithLabelValues(operation, "error").Inc()
			return backoff.Permanent(err)
		}
		metrics.YouTubeRequestsTotal.WithLabelValues(operation, "retryable").Inc()
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.YouTubeRetriesTotal.WithLabelValues(operation).Inc()
		logger.Log.Warn("Retrying YouTube API call",
			zap.String("operation", operation),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}
	if IsRetryable(err) && attempts >= c.maxAttempts {
		return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrRetriesExhausted, attempts, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// FetchPlaylistItems pages through a playlist in remote order. maxResults <= 0
// means no limit. Entries without a viewable video are skipped.
func (c *Client) FetchPlaylistItems(ctx context.Context, playlistID string, maxResults int) ([]models.RemoteItem, error) {
	var (
		items     []models.RemoteItem
		pageToken string
	)

	for {
		var resp *youtube.PlaylistItemListResponse
		err := c.call(ctx, "playlistItems.list", func() error {
			call := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(MaxBatchSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrNotFound)
			}
			return nil, err
		}

		for _, it := range resp.Items {
			if item, ok := toRemoteItem(it); ok {
				items = append(items, item)
			}
			if maxResults > 0 && len(items) >= maxResults {
				return items, nil
			}
		}

		if resp.NextPageToken == "" {
			return items, nil
		}
		pageToken = resp.NextPageToken
	}
}

func toRemoteItem(it *youtube.PlaylistItem) (models.RemoteItem, bool) {
	if it.Snippet == nil {
		return models.RemoteItem{}, false
	}
	videoID := ""
	if it.ContentDetails != nil {
		videoID = it.ContentDetails.VideoId
	}
	if videoID == "" && it.Snippet.ResourceId != nil {
		videoID = it.Snippet.ResourceId.VideoId
	}
	if videoID == "" || placeholderTitles[it.Snippet.Title] {
		return models.RemoteItem{}, false
	}
	return models.RemoteItem{
		VideoID:  videoID,
		Position: int(it.Snippet.Position),
		Title:    it.Snippet.Title,
	}, true
}

// FetchVideoDetails fetches metadata in sequential batches of MaxBatchSize.
// Results from successful batches are returned even when another batch
// failed; the joined batch errors are returned alongside. IDs the API does
// not return (deleted or private videos) are simply absent.
func (c *Client) FetchVideoDetails(ctx context.Context, videoIDs []string) ([]*models.VideoDetails, error) {
	var (
		details []*models.VideoDetails
		errs    []error
	)

	for _, batch := range BatchVideoIDs(dedupe(videoIDs), MaxBatchSize) {
		var resp *youtube.VideoListResponse
		err := c.call(ctx, "videos.list", func() error {
			var err error
			resp, err = c.service.Videos.List([]string{"snippet", "contentDetails", "statistics", "status"}).
				Id(batch...).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, v := range resp.Items {
			details = append(details, toVideoDetails(v))
		}
	}

	return details, errors.Join(errs...)
}

func toVideoDetails(v *youtube.Video) *models.VideoDetails {
	d := &models.VideoDetails{VideoID: v.Id}

	if v.Snippet != nil {
		d.Title = v.Snippet.Title
		d.Description = v.Snippet.Description
		d.ChannelID = v.Snippet.ChannelId
		d.ChannelTitle = v.Snippet.ChannelTitle
		d.CategoryID = v.Snippet.CategoryId
		d.Tags = v.Snippet.Tags
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			d.PublishedAt = t
		}
		d.Thumbnails = thumbnailSet(v.Snippet.Thumbnails)
	}
	if v.ContentDetails != nil {
		d.Duration = v.ContentDetails.Duration
	}
	if v.Statistics != nil {
		d.Statistics = models.Statistics{
			ViewCount:    int64(v.Statistics.ViewCount),    //nolint:gosec // counts fit in int64
			LikeCount:    int64(v.Statistics.LikeCount),    //nolint:gosec // counts fit in int64
			CommentCount: int64(v.Statistics.CommentCount), //nolint:gosec // counts fit in int64
		}
	}
	if v.Status != nil {
		d.Status = models.VideoStatus{
			PrivacyStatus: v.Status.PrivacyStatus,
			Embeddable:    v.Status.Embeddable,
			MadeForKids:   v.Status.MadeForKids,
			UploadStatus:  v.Status.UploadStatus,
			License:       v.Status.License,
		}
	}
	return d
}

func thumbnailSet(t *youtube.ThumbnailDetails) map[string]string {
	out := map[string]string{}
	if t == nil {
		return out
	}
	for tier, thumb := range map[string]*youtube.Thumbnail{
		"default":  t.Default,
		"medium":   t.Medium,
		"high":     t.High,
		"standard": t.Standard,
		"maxres":   t.Maxres,
	} {
		if thumb != nil && thumb.Url != "" {
			out[tier] = thumb.Url
		}
	}
	return out
}

// BestThumbnail picks the highest resolution URL in set.
func BestThumbnail(set map[string]string) string {
	for _, tier := range []string{"maxres", "standard", "high", "medium", "default"} {
		if u := set[tier]; u != "" {
			return u
		}
	}
	return ""
}

// FetchPlaylist returns the remote playlist descriptor.
func (c *Client) FetchPlaylist(ctx context.Context, playlistID string) (*models.RemotePlaylist, error) {
	var resp *youtube.PlaylistListResponse
	err := c.call(ctx, "playlists.list", func() error {
		var err error
		resp, err = c.service.Playlists.List([]string{"snippet", "contentDetails"}).
			Id(playlistID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrNotFound)
	}

	p := resp.Items[0]
	out := &models.RemotePlaylist{PlaylistID: p.Id}
	if p.Snippet != nil {
		out.Title = p.Snippet.Title
		out.Description = p.Snippet.Description
		out.ChannelTitle = p.Snippet.ChannelTitle
		out.ThumbnailURL = BestThumbnail(thumbnailSet(p.Snippet.Thumbnails))
	}
	if p.ContentDetails != nil {
		out.ItemCount = int(p.ContentDetails.ItemCount)
	}
	return out, nil
}

// FetchUploadsPlaylistID resolves a channel's uploads playlist.
func (c *Client) FetchUploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var resp *youtube.ChannelListResponse
	err := c.call(ctx, "channels.list", func() error {
		var err error
		resp, err = c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// BatchVideoIDs splits a large list of video IDs into batches.
func BatchVideoIDs(videoIDs []string, batchSize int) [][]string {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	var batches [][]string
	for i := 0; i < len(videoIDs); i += batchSize {
		end := i + batchSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		batches = append(batches, videoIDs[i:end])
	}
	return batches
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
