package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

type syncFixture struct {
	store       *repository.MemoryStore
	source      *fakeSource
	leases      *LeaseManager
	invalidator *recordingInvalidator
	publisher   *recordingPublisher
	svc         *SyncService
}

func newSyncFixture(t *testing.T, opts []SyncOption, playlists ...string) *syncFixture {
	t.Helper()
	f := &syncFixture{
		store:       repository.NewMemoryStore(),
		source:      newFakeSource(),
		invalidator: &recordingInvalidator{},
		publisher:   &recordingPublisher{},
	}
	seedPlaylists(t, f.store, playlists...)
	f.leases = NewLeaseManager(f.store, time.Minute)
	opts = append([]SyncOption{WithInvalidator(f.invalidator), WithPublisher(f.publisher)}, opts...)
	f.svc = NewSyncService(f.store, NewReconciler(f.store, f.source, nil, 0), f.leases, opts...)
	return f
}

func TestSyncPlaylist_DispatchesAndPublishes(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.setPage("PL1", "vid00000001")

	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, res.Status)
	assert.NotEmpty(t, res.TraceID)

	require.Len(t, f.invalidator.changes, 1)
	change := f.invalidator.changes[0]
	assert.Equal(t, invalidation.ChangePlaylist, change.Type)
	assert.Equal(t, []invalidation.PlaylistRef{{ID: "PL1", Slug: "slug-PL1"}}, change.Playlists)
	assert.Equal(t, []string{"vid00000001"}, change.VideoIDs)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, "PL1", event.PlaylistID)
	assert.Equal(t, models.TriggerManual, event.Trigger)
	assert.Equal(t, 1, event.VideosAdded)
	assert.Equal(t, res.TraceID, event.TraceID)

	assert.Nil(t, getPlaylist(t, f.store, "PL1").SyncLeaseOwner, "lease released after the run")
}

func TestSyncPlaylist_UnchangedSkipsInvalidation(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.setPage("PL1", "vid00000001")

	_, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)
	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)

	assert.True(t, res.Unchanged)
	assert.Len(t, f.invalidator.changes, 1)
	assert.Len(t, f.publisher.events, 2, "every attempt is published")
}

func TestSyncPlaylist_NotFound(t *testing.T) {
	f := newSyncFixture(t, nil)

	_, err := f.svc.SyncPlaylist(context.Background(), "PLmissing", models.TriggerManual)
	assert.ErrorIs(t, err, ErrPlaylistNotFound)
}

func TestSyncPlaylist_LeaseHeld(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.setPage("PL1", "vid00000001")

	ok, err := f.leases.Acquire(context.Background(), "PL1", "other-run", 0)
	require.NoError(t, err)
	require.True(t, ok)
	before := f.store.Writes()

	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, f.source.itemCalls)
	assert.Equal(t, before, f.store.Writes())
	assert.Empty(t, f.invalidator.changes)
	assert.Equal(t, "other-run", *getPlaylist(t, f.store, "PL1").SyncLeaseOwner)
}

func TestSyncPlaylist_LeaseTakenOverDuringFetch(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.setPage("PL1", "vid00000001")
	f.source.onFetch = func(string) {
		// The run's lease expires while the page is fetched and another run takes it.
		f.leases.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		ok, err := f.leases.Acquire(context.Background(), "PL1", "other-run", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerScheduled)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLeaseLost)
	assert.Equal(t, models.SyncStatusFailed, res.Status)
	assert.Empty(t, liveItems(t, f.store, "PL1"))
	assert.Zero(t, f.source.detailCalls)
	assert.Empty(t, f.invalidator.changes)

	owner := getPlaylist(t, f.store, "PL1").SyncLeaseOwner
	require.NotNil(t, owner)
	assert.Equal(t, "other-run", *owner)
}

func TestSyncPlaylist_FailureReleasesLease(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.pageErr["PL1"] = errRemote

	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusFailed, res.Status)
	assert.Nil(t, getPlaylist(t, f.store, "PL1").SyncLeaseOwner)
	assert.Empty(t, f.invalidator.changes)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.SyncStatusFailed, f.publisher.events[0].Status)
}

func TestSyncPlaylist_PublishFailureIsIgnored(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	f.source.setPage("PL1", "vid00000001")
	f.publisher.err = errRemote

	res, err := f.svc.SyncPlaylist(context.Background(), "PL1", models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, res.Status)
}

func TestSyncAll_FailureDoesNotStopSiblings(t *testing.T) {
	f := newSyncFixture(t, []SyncOption{WithConcurrency(2)}, "PL1", "PL2", "PL3")
	f.source.setPage("PL1", "vid00000001")
	f.source.pageErr["PL2"] = errRemote
	f.source.setPage("PL3", "vid00000003", "vid00000004")

	bulk, err := f.svc.SyncAll(context.Background(), models.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Failed)
	assert.Equal(t, 3, bulk.Added)
	assert.Len(t, bulk.Results, 3)
	require.Len(t, bulk.Errors, 1)
	assert.Contains(t, bulk.Errors[0], "PL2")

	assert.Len(t, liveItems(t, f.store, "PL1"), 1)
	assert.Len(t, liveItems(t, f.store, "PL3"), 2)

	history, err := f.store.ListSyncHistory(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for _, h := range history {
		assert.Equal(t, models.TriggerScheduled, h.Trigger)
		assert.Equal(t, bulk.TraceID, h.TraceID)
	}
}

func TestSyncAll_QuotaExhausted(t *testing.T) {
	f := newSyncFixture(t, []SyncOption{WithQuotaChecker(fixedQuota(false))}, "PL1", "PL2")
	f.source.setPage("PL1", "vid00000001")

	bulk, err := f.svc.SyncAll(context.Background(), models.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.Skipped)
	assert.Len(t, bulk.Errors, 2)
	assert.Zero(t, f.source.itemCalls)
}

func TestSyncAll_SkipsLeasedPlaylist(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1", "PL2")
	f.source.setPage("PL1", "vid00000001")
	f.source.setPage("PL2", "vid00000002")

	ok, err := f.leases.Acquire(context.Background(), "PL2", "other-run", 0)
	require.NoError(t, err)
	require.True(t, ok)

	bulk, err := f.svc.SyncAll(context.Background(), models.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Skipped)
	assert.Empty(t, liveItems(t, f.store, "PL2"))
}

func TestSyncAll_CancelledContext(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bulk, err := f.svc.SyncAll(ctx, models.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.Skipped)
	assert.Zero(t, f.source.itemCalls)
}

func TestSyncAll_SkipsInactivePlaylists(t *testing.T) {
	f := newSyncFixture(t, nil, "PL1")
	require.NoError(t, f.store.CreatePlaylist(context.Background(), &models.Playlist{PlaylistID: "PLoff", IsActive: false}))
	f.source.setPage("PL1")

	bulk, err := f.svc.SyncAll(context.Background(), models.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.Succeeded)
	assert.Len(t, bulk.Results, 1)
}
