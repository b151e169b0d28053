package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/invalidation"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

var errRemote = errors.New("remote unavailable")

// fakeSource serves canned playlist pages. Details are synthesized for every
// requested ID unless listed in missing.
type fakeSource struct {
	mu          sync.Mutex
	pages       map[string][]models.RemoteItem
	pageErr     map[string]error
	missing     map[string]bool
	detailsErr  error
	metaErr     error
	itemCalls   int
	detailCalls int
	detailIDs   []string
	// onFetch runs before a page is served, outside the lock.
	onFetch func(playlistID string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:   make(map[string][]models.RemoteItem),
		pageErr: make(map[string]error),
		missing: make(map[string]bool),
	}
}

func (f *fakeSource) setPage(playlistID string, videoIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.RemoteItem, 0, len(videoIDs))
	for i, id := range videoIDs {
		items = append(items, models.RemoteItem{VideoID: id, Position: i, Title: "title " + id})
	}
	f.pages[playlistID] = items
}

func (f *fakeSource) FetchPlaylistItems(_ context.Context, playlistID string, _ int) ([]models.RemoteItem, error) {
	if f.onFetch != nil {
		f.onFetch(playlistID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemCalls++
	if err := f.pageErr[playlistID]; err != nil {
		return nil, err
	}
	return append([]models.RemoteItem(nil), f.pages[playlistID]...), nil
}

func (f *fakeSource) FetchVideoDetails(_ context.Context, ids []string) ([]*models.VideoDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	f.detailIDs = append(f.detailIDs, ids...)
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	var out []*models.VideoDetails
	for _, id := range ids {
		if f.missing[id] {
			continue
		}
		out = append(out, &models.VideoDetails{
			VideoID:     id,
			Title:       "Video " + id,
			Duration:    "PT2M",
			PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Statistics:  models.Statistics{ViewCount: 10},
		})
	}
	return out, nil
}

func (f *fakeSource) FetchPlaylist(_ context.Context, playlistID string) (*models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return &models.RemotePlaylist{PlaylistID: playlistID, Title: "Remote " + playlistID, ThumbnailURL: "https://img/" + playlistID}, nil
}

type recordingInvalidator struct {
	mu      sync.Mutex
	changes []invalidation.Change
}

func (r *recordingInvalidator) Dispatch(_ context.Context, change invalidation.Change) invalidation.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return invalidation.Report{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.SyncEvent
	err    error
}

func (p *recordingPublisher) PublishSyncEvent(_ context.Context, e *models.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) IsHealthy() bool { return true }
func (p *recordingPublisher) Close() error    { return nil }

type fixedQuota bool

func (q fixedQuota) Available(int) bool { return bool(q) }

func seedPlaylists(t *testing.T, store *repository.MemoryStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.CreatePlaylist(context.Background(), &models.Playlist{
			PlaylistID: id,
			Title:      "Local " + id,
			IsActive:   true,
			Slug:       "slug-" + id,
		}))
	}
}

func getPlaylist(t *testing.T, store repository.Store, id string) *models.Playlist {
	t.Helper()
	pl, err := store.GetPlaylist(context.Background(), id)
	require.NoError(t, err)
	return pl
}

func liveItems(t *testing.T, store repository.Store, playlistID string) map[string]int {
	t.Helper()
	items, err := store.FindPlaylistItems(context.Background(), playlistID)
	require.NoError(t, err)
	out := make(map[string]int)
	for _, it := range items {
		if !it.IsRemoved() {
			out[it.VideoID] = it.Position
		}
	}
	return out
}
