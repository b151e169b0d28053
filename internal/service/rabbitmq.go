package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

const confirmTimeout = 5 * time.Second

// EventPublisher announces completed reconciliations to downstream consumers.
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, event *models.SyncEvent) error
	IsHealthy() bool
	Close() error
}

// NoopPublisher discards events. It is used when messaging is disabled.
type NoopPublisher struct{}

// PublishSyncEvent implements EventPublisher.
func (NoopPublisher) PublishSyncEvent(context.Context, *models.SyncEvent) error { return nil }

// IsHealthy implements EventPublisher.
func (NoopPublisher) IsHealthy() bool { return true }

// Close implements EventPublisher.
func (NoopPublisher) Close() error { return nil }

// SyncEventPublisher publishes SyncEvents to a durable topic exchange with
// publisher confirms. A dropped connection is redialed on the next publish.
type SyncEventPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	mu      sync.Mutex
	closed  bool
}

// NewSyncEventPublisher dials the broker and declares the exchange, queue and
// binding.
func NewSyncEventPublisher(cfg *config.RabbitMQConfig) (*SyncEventPublisher, error) {
	p := &SyncEventPublisher{config: cfg}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dialLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SyncEventPublisher) amqpURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(p.config.User, p.config.Password),
		Host:   net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port)),
		Path:   "/",
	}
	return u.String()
}

func (p *SyncEventPublisher) dialLocked() error {
	conn, err := amqp.Dial(p.amqpURL())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := p.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("queue", p.config.Queue),
		zap.String("routingKey", p.config.RoutingKey))
	return nil
}

func (p *SyncEventPublisher) declare(ch *amqp.Channel) error {
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(p.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(p.config.Queue, true, false, false, false, amqp.Table{
		"x-message-ttl": int32(7 * 24 * time.Hour / time.Millisecond),
		"x-max-length":  int32(50_000),
	}); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(p.config.Queue, p.config.RoutingKey, p.config.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// PublishSyncEvent publishes event and waits for the broker's confirm.
func (p *SyncEventPublisher) PublishSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	err := p.publish(ctx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.EventsPublishedTotal.WithLabelValues(outcome).Inc()
	return err
}

func (p *SyncEventPublisher) publish(ctx context.Context, event *models.SyncEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("publisher is closed")
	}
	if p.conn == nil || p.conn.IsClosed() {
		logger.Log.Warn("RabbitMQ connection lost, redialing")
		if err := p.dialLocked(); err != nil {
			return err
		}
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.config.Exchange,
		p.config.RoutingKey,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			MessageId:    event.EventID.String(),
			Type:         "playlist.synced",
			Headers:      amqp.Table{"traceId": event.TraceID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		return errors.New("sync event was not acknowledged by broker")
	}

	logger.Log.Debug("Published sync event",
		zap.String("eventId", event.EventID.String()),
		zap.String("playlistId", event.PlaylistID),
		zap.String("status", string(event.Status)))
	return nil
}

// Close shuts the channel and connection. Later publishes fail.
func (p *SyncEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors closing publisher: %w", err)
	}

	logger.Log.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the connection is open.
func (p *SyncEventPublisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.closed && p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
