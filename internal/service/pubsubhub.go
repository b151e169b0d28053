package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

var (
	// ErrSubscriptionFailed is returned when the hub rejects a request.
	ErrSubscriptionFailed = errors.New("subscription request failed")

	// ErrInvalidHubResponse is returned for unexpected hub status codes.
	ErrInvalidHubResponse = errors.New("invalid hub response")
)

const channelFeedURL = "https://www.youtube.com/xml/feeds/videos.xml?channel_id="

// ChannelTopicURL is the hub topic for a channel's upload feed.
func ChannelTopicURL(channelID string) string {
	return channelFeedURL + url.QueryEscape(channelID)
}

// HTTPClient is the subset of *http.Client used for hub calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PubSubHub subscribes the webhook callback to hub topics.
type PubSubHub interface {
	Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error)
	Unsubscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error)
}

// SubscribeRequest holds the parameters of one hub request.
type SubscribeRequest struct {
	HubURL       string
	TopicURL     string
	CallbackURL  string
	Secret       string
	LeaseSeconds int
}

// SubscribeResponse is the hub's answer.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type SubscribeResponse struct {
	Accepted     bool
	StatusCode   int
	ResponseBody string
	LeaseSeconds int
}

// HubClient talks to a PubSubHubbub hub. The hub verifies intent
// asynchronously by calling the webhook's GET handshake.
type HubClient struct {
	client HTTPClient
}

// NewHubClient creates a HubClient. A nil client uses http.DefaultClient.
func NewHubClient(client HTTPClient) *HubClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HubClient{client: client}
}

// Subscribe asks the hub to deliver topic notifications to the callback.
// The secret, when set, makes the hub sign every delivery.
func (h *HubClient) Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error) {
	if err := validateSubscribeRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	form := url.Values{}
	form.Set("hub.mode", "subscribe")
	form.Set("hub.topic", req.TopicURL)
	form.Set("hub.callback", req.CallbackURL)
	form.Set("hub.verify", "async")
	if req.LeaseSeconds > 0 {
		form.Set("hub.lease_seconds", strconv.Itoa(req.LeaseSeconds))
	}
	if req.Secret != "" {
		form.Set("hub.secret", req.Secret)
	}

	resp, err := h.send(ctx, "subscribe", req, form)
	if resp != nil {
		resp.LeaseSeconds = req.LeaseSeconds
	}
	return resp, err
}

// Unsubscribe asks the hub to stop deliveries for the topic.
func (h *HubClient) Unsubscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error) {
	if err := validateSubscribeRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	form := url.Values{}
	form.Set("hub.mode", "unsubscribe")
	form.Set("hub.topic", req.TopicURL)
	form.Set("hub.callback", req.CallbackURL)
	form.Set("hub.verify", "async")

	return h.send(ctx, "unsubscribe", req, form)
}

func (h *HubClient) send(ctx context.Context, mode string, req *SubscribeRequest, form url.Values) (*SubscribeResponse, error) {
	log := logger.Log.With(
		zap.String("mode", mode),
		zap.String("hub", req.HubURL),
		zap.String("topic", req.TopicURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.HubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		metrics.HubRequestsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	out := &SubscribeResponse{StatusCode: resp.StatusCode, ResponseBody: string(body)}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		out.Accepted = true
		metrics.HubRequestsTotal.WithLabelValues(mode, "accepted").Inc()
		log.Info("Hub accepted request", zap.Int("status", resp.StatusCode))
		return out, nil
	case http.StatusBadRequest, http.StatusNotFound:
		metrics.HubRequestsTotal.WithLabelValues(mode, "rejected").Inc()
		log.Warn("Hub rejected request", zap.Int("status", resp.StatusCode), zap.String("body", out.ResponseBody))
		return out, fmt.Errorf("%w: status %d: %s", ErrSubscriptionFailed, resp.StatusCode, out.ResponseBody)
	default:
		metrics.HubRequestsTotal.WithLabelValues(mode, "unexpected").Inc()
		log.Error("Unexpected hub response", zap.Int("status", resp.StatusCode), zap.String("body", out.ResponseBody))
		return out, fmt.Errorf("%w: status %d: %s", ErrInvalidHubResponse, resp.StatusCode, out.ResponseBody)
	}
}

func validateSubscribeRequest(req *SubscribeRequest) error {
	if req == nil {
		return errors.New("request is nil")
	}
	if req.LeaseSeconds < 0 {
		return errors.New("lease seconds must be non-negative")
	}
	for name, raw := range map[string]string{"hub": req.HubURL, "topic": req.TopicURL, "callback": req.CallbackURL} {
		if raw == "" {
			return fmt.Errorf("%s URL is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s URL %q", name, raw)
		}
	}
	return nil
}
