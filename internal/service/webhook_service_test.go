package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/parser"
)

type webhookFixture struct {
	*syncFixture
	ws *WebhookService
}

func newWebhookFixture(t *testing.T, playlists ...string) *webhookFixture {
	t.Helper()
	sf := newSyncFixture(t, nil, playlists...)
	return &webhookFixture{
		syncFixture: sf,
		ws:          NewWebhookService(sf.store, sf.source, sf.svc, sf.invalidator, nil, 0),
	}
}

func notification(videoIDs []string, deleted ...string) *parser.Notification {
	return &parser.Notification{VideoIDs: videoIDs, DeletedVideoIDs: deleted}
}

func TestProcessNotification_NewVideoInTrackedPlaylist(t *testing.T) {
	f := newWebhookFixture(t, "PL1", "PL2")
	f.source.setPage("PL1", "vid00000001")
	f.source.setPage("PL2", "other000001")

	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"vid00000001"}))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VideosProcessed)
	assert.False(t, resp.Timestamp.IsZero())

	assert.Equal(t, map[string]int{"vid00000001": 0}, liveItems(t, f.store, "PL1"))
	assert.Empty(t, liveItems(t, f.store, "PL2"), "unaffected playlists are not reconciled")
	assert.Equal(t, 1, f.source.detailCalls, "details fetched once and reused")

	history, err := f.store.ListSyncHistory(context.Background(), "PL1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TriggerWebhook, history[0].Trigger)

	require.Len(t, f.invalidator.changes, 1)
	change := f.invalidator.changes[0]
	assert.Contains(t, change.VideoIDs, "vid00000001")
	require.Len(t, change.Playlists, 1)
	assert.Equal(t, "PL1", change.Playlists[0].ID)
}

func TestProcessNotification_UpdatedVideoRefreshed(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	f.source.setPage("PL1", "vid00000001")
	_, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)
	before, err := f.store.FindVideoByVideoID(context.Background(), "vid00000001")
	require.NoError(t, err)

	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"vid00000001"}))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VideosProcessed)

	after, err := f.store.FindVideoByVideoID(context.Background(), "vid00000001")
	require.NoError(t, err)
	assert.Greater(t, after.SyncVersion, before.SyncVersion)
	assert.Equal(t, []string{"PL1"}, after.Playlists)
}

func TestProcessNotification_UntrackedVideoIgnored(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	f.source.setPage("PL1", "vid00000001")

	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"stranger001"}))
	require.NoError(t, err)
	assert.Zero(t, resp.VideosProcessed)

	_, err = f.store.FindVideoByVideoID(context.Background(), "stranger001")
	assert.True(t, db.IsNotFound(err))
	assert.Empty(t, f.invalidator.changes)
}

func TestProcessNotification_DeletedVideo(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	f.source.setPage("PL1", "vid00000001", "vid00000002")
	_, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)

	f.source.setPage("PL1", "vid00000001")
	resp, err := f.ws.ProcessNotification(context.Background(), notification(nil, "vid00000002"))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VideosProcessed)

	_, err = f.store.FindVideoByVideoID(context.Background(), "vid00000002")
	assert.True(t, db.IsNotFound(err), "deleted video loses its last membership")
	assert.Equal(t, map[string]int{"vid00000001": 0}, liveItems(t, f.store, "PL1"))

	require.Len(t, f.invalidator.changes, 2)
	last := f.invalidator.changes[1]
	assert.Contains(t, last.VideoIDs, "vid00000002")
}

func TestProcessNotification_EmptyIsNoop(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	before := f.store.Writes()

	resp, err := f.ws.ProcessNotification(context.Background(), &parser.Notification{})
	require.NoError(t, err)
	assert.Zero(t, resp.VideosProcessed)
	assert.Zero(t, f.source.itemCalls)
	assert.Equal(t, before, f.store.Writes())
	assert.Empty(t, f.invalidator.changes)
}

func TestProcessNotification_PageFetchFailureSkipsPlaylist(t *testing.T) {
	f := newWebhookFixture(t, "PL1", "PL2")
	f.source.pageErr["PL1"] = errRemote
	f.source.setPage("PL2", "vid00000001")

	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"vid00000001"}))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VideosProcessed)
	assert.Len(t, liveItems(t, f.store, "PL2"), 1)
}

func TestProcessNotification_LeaseHeldStillRefreshesKnownVideo(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	f.source.setPage("PL1", "vid00000001")
	_, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)

	ok, err := f.leases.Acquire(context.Background(), "PL1", "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"vid00000001"}))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VideosProcessed)
}

func TestProcessNotification_LeaseHeldLeavesNewVideoToReconcile(t *testing.T) {
	f := newWebhookFixture(t, "PL1")
	f.source.setPage("PL1", "vid00000001")
	_, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)

	ok, err := f.leases.Acquire(context.Background(), "PL1", "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.source.setPage("PL1", "vid00000001", "vid00000002")
	resp, err := f.ws.ProcessNotification(context.Background(), notification([]string{"vid00000002"}))
	require.NoError(t, err)
	assert.Zero(t, resp.VideosProcessed)

	_, err = f.store.FindVideoByVideoID(context.Background(), "vid00000002")
	assert.True(t, db.IsNotFound(err), "no video row without a membership")

	require.NoError(t, f.store.ReleaseLease(context.Background(), "PL1", "other-run"))
	_, err = f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerScheduled)
	require.NoError(t, err)

	v, err := f.store.FindVideoByVideoID(context.Background(), "vid00000002")
	require.NoError(t, err)
	assert.Equal(t, []string{"PL1"}, v.Playlists)
	assert.False(t, v.IsStub())
}

type failingListStore struct {
	*repository.MemoryStore
}

func (failingListStore) ListActivePlaylists(context.Context) ([]*models.Playlist, error) {
	return nil, errors.New("connection refused")
}

func TestProcessNotification_ListFailure(t *testing.T) {
	sf := newSyncFixture(t, nil)
	ws := NewWebhookService(failingListStore{sf.store}, sf.source, sf.svc, nil, nil, 0)

	_, err := ws.ProcessNotification(context.Background(), notification([]string{"vid00000001"}))
	require.Error(t, err)
	var procErr *ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.Error(), "connection refused")
}
