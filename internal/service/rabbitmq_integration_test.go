//go:build integration
// +build integration

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

func setupTestRabbitMQ(t *testing.T) *config.RabbitMQConfig {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return &config.RabbitMQConfig{
		Enabled:    true,
		Host:       host,
		Port:       port.Int(),
		User:       "guest",
		Password:   "guest",
		Exchange:   "playlist.sync.test",
		Queue:      "playlist.sync.events.test",
		RoutingKey: "playlist.synced",
	}
}

func testSyncEvent() *models.SyncEvent {
	return &models.SyncEvent{
		EventID:         uuid.New(),
		PlaylistID:      "PL1",
		Status:          models.SyncStatusSuccess,
		Trigger:         models.TriggerManual,
		TraceID:         uuid.NewString(),
		VideosAdded:     1,
		ChangedVideoIDs: []string{"A"},
		OccurredAt:      time.Now().UTC(),
	}
}

func TestSyncEventPublisher_PublishAndConsume(t *testing.T) {
	cfg := setupTestRabbitMQ(t)

	p, err := NewSyncEventPublisher(cfg)
	require.NoError(t, err)
	defer p.Close()

	event := testSyncEvent()
	require.NoError(t, p.PublishSyncEvent(context.Background(), event))

	conn, err := amqp.Dial(p.amqpURL())
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get(cfg.Queue, true)
	require.NoError(t, err)
	require.True(t, ok, "expected a message on the queue")

	var got models.SyncEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, "PL1", got.PlaylistID)
	assert.Equal(t, []string{"A"}, got.ChangedVideoIDs)
	assert.Equal(t, "playlist.synced", msg.Type)
	assert.Equal(t, event.EventID.String(), msg.MessageId)
}

func TestSyncEventPublisher_IsHealthy(t *testing.T) {
	cfg := setupTestRabbitMQ(t)

	p, err := NewSyncEventPublisher(cfg)
	require.NoError(t, err)

	assert.True(t, p.IsHealthy())
	require.NoError(t, p.Close())
	assert.False(t, p.IsHealthy())
	assert.Error(t, p.PublishSyncEvent(context.Background(), testSyncEvent()))
}

func TestSyncEventPublisher_RedialsAfterConnectionLoss(t *testing.T) {
	cfg := setupTestRabbitMQ(t)

	p, err := NewSyncEventPublisher(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.conn.Close())
	assert.False(t, p.IsHealthy())

	require.NoError(t, p.PublishSyncEvent(context.Background(), testSyncEvent()))
	assert.True(t, p.IsHealthy())
}
