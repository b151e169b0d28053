package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

type itemKey struct {
	playlistID string
	videoID    string
}

type memState struct {
	videos    map[string]*models.Video
	playlists map[string]*models.Playlist
	items     map[itemKey]*models.PlaylistItem
	history   []*models.SyncHistory
}

func (s *memState) clone() *memState {
	c := &memState{
		videos:    make(map[string]*models.Video, len(s.videos)),
		playlists: make(map[string]*models.Playlist, len(s.playlists)),
		items:     make(map[itemKey]*models.PlaylistItem, len(s.items)),
		history:   s.history,
	}
	for k, v := range s.videos {
		c.videos[k] = copyVideo(v)
	}
	for k, p := range s.playlists {
		c.playlists[k] = copyPlaylist(p)
	}
	for k, i := range s.items {
		c.items[k] = copyItem(i)
	}
	return c
}

// MemoryStore is an in-process Store. Transactions run against a private
// copy of the state that replaces the live state only when fn succeeds.
// Writes are serialized by a single mutex, so fn must not call back into the
// store itself.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time

	// writes counts committed mutations so tests can assert that nothing was written.
	writes int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			videos:    make(map[string]*models.Video),
			playlists: make(map[string]*models.Playlist),
			items:     make(map[itemKey]*models.PlaylistItem),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Writes returns the number of mutating calls that committed.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) FindVideoByVideoID(_ context.Context, videoID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.state.videos[videoID]
	if !ok {
		return nil, fmt.Errorf("find video by video id: %w", db.ErrNotFound)
	}
	return copyVideo(v), nil
}

func (s *MemoryStore) UpsertVideo(_ context.Context, video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := copyVideo(video)
	if existing, ok := s.state.videos[video.VideoID]; ok {
		stored.Playlists = slices.Clone(existing.Playlists)
		stored.SyncVersion = existing.SyncVersion + 1
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.Playlists = nil
		stored.SyncVersion = 1
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.state.videos[video.VideoID] = stored
	s.writes++

	video.Playlists = slices.Clone(stored.Playlists)
	video.SyncVersion = stored.SyncVersion
	video.CreatedAt = stored.CreatedAt
	video.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteVideo(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.videos[videoID]; !ok {
		return fmt.Errorf("delete video: %w", db.ErrNotFound)
	}
	delete(s.state.videos, videoID)
	s.writes++
	return nil
}

func (s *MemoryStore) FindPlaylistItems(_ context.Context, playlistID string) ([]*models.PlaylistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []*models.PlaylistItem
	for k, item := range s.state.items {
		if k.playlistID == playlistID {
			items = append(items, copyItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].VideoID < items[j].VideoID
	})
	return items, nil
}

func (s *MemoryStore) CreatePlaylist(_ context.Context, playlist *models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.playlists[playlist.PlaylistID]; ok {
		return nil
	}
	p := copyPlaylist(playlist)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.state.playlists[p.PlaylistID] = p
	s.writes++
	return nil
}

func (s *MemoryStore) GetPlaylist(_ context.Context, playlistID string) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("get playlist: %w", db.ErrNotFound)
	}
	return copyPlaylist(p), nil
}

func (s *MemoryStore) ListActivePlaylists(_ context.Context) ([]*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Playlist
	for _, p := range s.state.playlists {
		if p.IsActive {
			out = append(out, copyPlaylist(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaylistID < out[j].PlaylistID })
	return out, nil
}

func (s *MemoryStore) UpdatePlaylist(_ context.Context, playlistID string, meta models.PlaylistMetadata, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.playlists[playlistID]
	if !ok {
		return fmt.Errorf("update playlist: %w", db.ErrNotFound)
	}
	if meta.Title != "" {
		p.Title = meta.Title
	}
	if meta.Description != "" {
		p.Description = meta.Description
	}
	if meta.ThumbnailURL != "" {
		p.ThumbnailURL = meta.ThumbnailURL
	}
	if meta.ChannelTitle != "" {
		p.ChannelTitle = meta.ChannelTitle
	}
	p.ItemCount = meta.ItemCount
	synced := syncedAt
	p.LastSyncedAt = &synced
	p.UpdatedAt = s.now()
	s.writes++
	return nil
}

func (s *MemoryStore) CreateSyncHistory(_ context.Context, history *models.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if history.ID == uuid.Nil {
		history.ID = uuid.New()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = s.now()
	}
	h := *history
	s.state.history = append(s.state.history, &h)
	s.writes++
	return nil
}

func (s *MemoryStore) ListSyncHistory(_ context.Context, playlistID string, limit int) ([]*models.SyncHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.SyncHistory
	for i := len(s.state.history) - 1; i >= 0; i-- {
		h := s.state.history[i]
		if playlistID != "" && h.PlaylistID != playlistID {
			continue
		}
		c := *h
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, playlistID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.playlists[playlistID]
	if !ok {
		return false, fmt.Errorf("acquire lease: %w", db.ErrNotFound)
	}
	if !p.LeaseFree(owner, now) {
		return false, nil
	}
	until := now.Add(ttl)
	o := owner
	p.SyncLeaseUntil = &until
	p.SyncLeaseOwner = &o
	s.writes++
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, playlistID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.playlists[playlistID]
	if !ok || p.SyncLeaseOwner == nil || *p.SyncLeaseOwner != owner {
		return nil
	}
	p.SyncLeaseUntil = nil
	p.SyncLeaseOwner = nil
	s.writes++
	return nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone(), now: s.now()}
	if err := fn(tx); err != nil {
		return fmt.Errorf("run in transaction: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run in transaction: %w", err)
	}
	s.state = tx.state
	s.writes += tx.writes
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

type memTx struct {
	state  *memState
	now    time.Time
	writes int
}

func (t *memTx) CreatePlaylistItem(_ context.Context, item *models.PlaylistItem) error {
	k := itemKey{item.PlaylistID, item.VideoID}
	if _, ok := t.state.items[k]; ok {
		return fmt.Errorf("create playlist item: %w", db.ErrDuplicateKey)
	}
	if _, ok := t.state.playlists[item.PlaylistID]; !ok {
		return fmt.Errorf("create playlist item: %w", db.ErrForeignKeyViolation)
	}
	t.state.items[k] = copyItem(item)
	t.writes++
	return nil
}

func (t *memTx) UpdatePlaylistItem(_ context.Context, item *models.PlaylistItem) error {
	k := itemKey{item.PlaylistID, item.VideoID}
	existing, ok := t.state.items[k]
	if !ok {
		return fmt.Errorf("update playlist item: %w", db.ErrNotFound)
	}
	existing.Position = item.Position
	existing.Title = item.Title
	existing.RemovedAt = copyTime(item.RemovedAt)
	existing.UpdatedAt = item.UpdatedAt
	t.writes++
	return nil
}

func (t *memTx) EnsureVideo(_ context.Context, videoID, title string) error {
	if _, ok := t.state.videos[videoID]; ok {
		return nil
	}
	t.state.videos[videoID] = &models.Video{
		VideoID:   videoID,
		Title:     title,
		Tier:      models.TierStandard,
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}
	t.writes++
	return nil
}

func (t *memTx) AddMembership(_ context.Context, videoID, playlistID string) error {
	v, ok := t.state.videos[videoID]
	if !ok || v.InPlaylist(playlistID) {
		return nil
	}
	v.Playlists = append(v.Playlists, playlistID)
	v.UpdatedAt = t.now
	t.writes++
	return nil
}

func (t *memTx) RemoveMembership(_ context.Context, videoID, playlistID string) (int, error) {
	v, ok := t.state.videos[videoID]
	if !ok {
		return 0, nil
	}
	v.Playlists = slices.DeleteFunc(v.Playlists, func(id string) bool { return id == playlistID })
	v.UpdatedAt = t.now
	t.writes++
	return len(v.Playlists), nil
}

func (t *memTx) DeleteVideoIfOrphaned(_ context.Context, videoID string) (bool, error) {
	v, ok := t.state.videos[videoID]
	if !ok || len(v.Playlists) > 0 {
		return false, nil
	}
	delete(t.state.videos, videoID)
	t.writes++
	return true, nil
}

func (t *memTx) SetFingerprint(_ context.Context, playlistID, fingerprint string) error {
	p, ok := t.state.playlists[playlistID]
	if !ok {
		return fmt.Errorf("set fingerprint: %w", db.ErrNotFound)
	}
	fp := fingerprint
	p.ContentFingerprint = &fp
	t.writes++
	return nil
}

func copyVideo(v *models.Video) *models.Video {
	c := *v
	c.Tags = slices.Clone(v.Tags)
	c.Playlists = slices.Clone(v.Playlists)
	if v.Thumbnails != nil {
		c.Thumbnails = make(map[string]string, len(v.Thumbnails))
		for k, u := range v.Thumbnails {
			c.Thumbnails[k] = u
		}
	}
	return &c
}

func copyPlaylist(p *models.Playlist) *models.Playlist {
	c := *p
	c.SyncLeaseUntil = copyTime(p.SyncLeaseUntil)
	c.LastSyncedAt = copyTime(p.LastSyncedAt)
	if p.SyncLeaseOwner != nil {
		o := *p.SyncLeaseOwner
		c.SyncLeaseOwner = &o
	}
	if p.ContentFingerprint != nil {
		f := *p.ContentFingerprint
		c.ContentFingerprint = &f
	}
	return &c
}

func copyItem(i *models.PlaylistItem) *models.PlaylistItem {
	c := *i
	c.RemovedAt = copyTime(i.RemovedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
