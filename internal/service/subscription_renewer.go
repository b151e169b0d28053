package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// ErrNoCallbackURL is returned when hub renewal runs without a public callback.
var ErrNoCallbackURL = errors.New("webhook.callbackurl is not configured")

// RenewalResult summarizes one renewal pass.
type RenewalResult struct {
	Renewed int
	Failed  int
	Errors  []string
}

// SubscriptionRenewer re-subscribes the webhook callback to every configured
// channel feed. Hub leases expire, so this must run well within LeaseSeconds.
type SubscriptionRenewer struct {
	hub PubSubHub
	cfg config.WebhookConfig
}

// NewSubscriptionRenewer creates a SubscriptionRenewer.
func NewSubscriptionRenewer(hub PubSubHub, cfg config.WebhookConfig) *SubscriptionRenewer {
	return &SubscriptionRenewer{hub: hub, cfg: cfg}
}

// RenewAll subscribes each channel once. A failing channel does not stop the
// others.
func (r *SubscriptionRenewer) RenewAll(ctx context.Context) (*RenewalResult, error) {
	if r.cfg.CallbackURL == "" {
		return nil, ErrNoCallbackURL
	}

	res := &RenewalResult{}
	for _, channelID := range r.cfg.Channels {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, err := r.hub.Subscribe(ctx, &SubscribeRequest{
			HubURL:       r.cfg.HubURL,
			TopicURL:     ChannelTopicURL(channelID),
			CallbackURL:  r.cfg.CallbackURL,
			Secret:       r.cfg.Secret,
			LeaseSeconds: r.cfg.LeaseSeconds,
		})
		if err != nil {
			logger.Log.Error("Failed to renew hub subscription",
				zap.String("channelId", channelID),
				zap.Error(err))
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", channelID, err))
			continue
		}
		res.Renewed++
	}

	logger.Log.Info("Hub subscription renewal completed",
		zap.Int("channels", len(r.cfg.Channels)),
		zap.Int("renewed", res.Renewed),
		zap.Int("failed", res.Failed))
	return res, nil
}
