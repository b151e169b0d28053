package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/db"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

const videoColumns = `video_id, title, description, published_at, channel_id, channel_title, tags,
	category_id, duration, duration_seconds, thumbnails, view_count, like_count, comment_count,
	privacy_status, embeddable, made_for_kids, upload_status, license, is_short, tier, playlists,
	last_synced_at, sync_version, created_at, updated_at`

const playlistColumns = `playlist_id, title, description, thumbnail_url, item_count, channel_title,
	is_active, slug, sync_lease_until, sync_lease_owner, content_fingerprint, last_synced_at,
	created_at, updated_at`

const historyColumns = `id, status, videos_added, videos_updated, videos_removed, duration_seconds,
	playlist_id, playlist_name, error, trace_id, trigger, created_at`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindVideoByVideoID(ctx context.Context, videoID string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE video_id = $1`

	video, err := scanVideo(s.pool.QueryRow(ctx, query, videoID))
	if err != nil {
		return nil, db.WrapError(err, "find video by video id")
	}
	return video, nil
}

func (s *PostgresStore) UpsertVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (
			video_id, title, description, published_at, channel_id, channel_title, tags,
			category_id, duration, duration_seconds, thumbnails, view_count, like_count,
			comment_count, privacy_status, embeddable, made_for_kids, upload_status, license,
			is_short, tier, last_synced_at, sync_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, 1)
		ON CONFLICT (video_id) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    published_at = EXCLUDED.published_at,
		    channel_id = EXCLUDED.channel_id,
		    channel_title = EXCLUDED.channel_title,
		    tags = EXCLUDED.tags,
		    category_id = EXCLUDED.category_id,
		    duration = EXCLUDED.duration,
		    duration_seconds = EXCLUDED.duration_seconds,
		    thumbnails = EXCLUDED.thumbnails,
		    view_count = EXCLUDED.view_count,
		    like_count = EXCLUDED.like_count,
		    comment_count = EXCLUDED.comment_count,
		    privacy_status = EXCLUDED.privacy_status,
		    embeddable = EXCLUDED.embeddable,
		    made_for_kids = EXCLUDED.made_for_kids,
		    upload_status = EXCLUDED.upload_status,
		    license = EXCLUDED.license,
		    is_short = EXCLUDED.is_short,
		    tier = EXCLUDED.tier,
		    last_synced_at = EXCLUDED.last_synced_at,
		    sync_version = videos.sync_version + 1,
		    updated_at = NOW()
		RETURNING playlists, sync_version, created_at, updated_at
	`

	tags := video.Tags
	if tags == nil {
		tags = []string{}
	}
	thumbnails := video.Thumbnails
	if thumbnails == nil {
		thumbnails = map[string]string{}
	}

	err := s.pool.QueryRow(ctx, query,
		video.VideoID,
		video.Title,
		video.Description,
		nullTime(video.PublishedAt),
		video.ChannelID,
		video.ChannelTitle,
		tags,
		video.CategoryID,
		video.Duration,
		video.DurationSeconds,
		thumbnails,
		video.Statistics.ViewCount,
		video.Statistics.LikeCount,
		video.Statistics.CommentCount,
		video.Status.PrivacyStatus,
		video.Status.Embeddable,
		video.Status.MadeForKids,
		video.Status.UploadStatus,
		video.Status.License,
		video.IsShort,
		string(video.Tier),
		nullTime(video.LastSyncedAt),
	).Scan(&video.Playlists, &video.SyncVersion, &video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		return db.WrapError(err, "upsert video")
	}
	return nil
}

func (s *PostgresStore) DeleteVideo(ctx context.Context, videoID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM videos WHERE video_id = $1`, videoID)
	if err != nil {
		return db.WrapError(err, "delete video")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "delete video")
	}
	return nil
}

func (s *PostgresStore) FindPlaylistItems(ctx context.Context, playlistID string) ([]*models.PlaylistItem, error) {
	query := `
		SELECT playlist_id, video_id, position, title, added_at, removed_at, updated_at
		FROM playlist_items
		WHERE playlist_id = $1
		ORDER BY position, video_id
	`

	rows, err := s.pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, db.WrapError(err, "find playlist items")
	}
	defer rows.Close()

	var items []*models.PlaylistItem
	for rows.Next() {
		item := &models.PlaylistItem{}
		if err := rows.Scan(
			&item.PlaylistID,
			&item.VideoID,
			&item.Position,
			&item.Title,
			&item.AddedAt,
			&item.RemovedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan playlist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlist items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	query := `
		INSERT INTO playlists (playlist_id, title, description, thumbnail_url, channel_title, is_active, slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (playlist_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		playlist.PlaylistID,
		playlist.Title,
		playlist.Description,
		playlist.ThumbnailURL,
		playlist.ChannelTitle,
		playlist.IsActive,
		playlist.Slug,
	)
	return db.WrapError(err, "create playlist")
}

func (s *PostgresStore) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE playlist_id = $1`

	playlist, err := scanPlaylist(s.pool.QueryRow(ctx, query, playlistID))
	if err != nil {
		return nil, db.WrapError(err, "get playlist")
	}
	return playlist, nil
}

func (s *PostgresStore) ListActivePlaylists(ctx context.Context) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE is_active ORDER BY playlist_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "list active playlists")
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlists: %w", err)
	}
	return playlists, nil
}

func (s *PostgresStore) UpdatePlaylist(ctx context.Context, playlistID string, meta models.PlaylistMetadata, syncedAt time.Time) error {
	// Blank remote fields keep the stored value; item_count is always authoritative.
	query := `
		UPDATE playlists
		SET title = COALESCE(NULLIF($2, ''), title),
		    description = COALESCE(NULLIF($3, ''), description),
		    thumbnail_url = COALESCE(NULLIF($4, ''), thumbnail_url),
		    channel_title = COALESCE(NULLIF($5, ''), channel_title),
		    item_count = $6,
		    last_synced_at = $7,
		    updated_at = NOW()
		WHERE playlist_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		playlistID,
		meta.Title,
		meta.Description,
		meta.ThumbnailURL,
		meta.ChannelTitle,
		meta.ItemCount,
		syncedAt,
	)
	if err != nil {
		return db.WrapError(err, "update playlist")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update playlist")
	}
	return nil
}

func (s *PostgresStore) CreateSyncHistory(ctx context.Context, history *models.SyncHistory) error {
	if history.ID == uuid.Nil {
		history.ID = uuid.New()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		history.ID,
		string(history.Status),
		history.VideosAdded,
		history.VideosUpdated,
		history.VideosRemoved,
		history.DurationSeconds,
		history.PlaylistID,
		history.PlaylistName,
		history.Error,
		history.TraceID,
		string(history.Trigger),
		history.CreatedAt,
	)
	return db.WrapError(err, "create sync history")
}

func (s *PostgresStore) ListSyncHistory(ctx context.Context, playlistID string, limit int) ([]*models.SyncHistory, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM sync_history
		WHERE ($1 = '' OR playlist_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, playlistID, limit)
	if err != nil {
		return nil, db.WrapError(err, "list sync history")
	}
	defer rows.Close()

	var records []*models.SyncHistory
	for rows.Next() {
		h := &models.SyncHistory{}
		var status, trigger string
		if err := rows.Scan(
			&h.ID,
			&status,
			&h.VideosAdded,
			&h.VideosUpdated,
			&h.VideosRemoved,
			&h.DurationSeconds,
			&h.PlaylistID,
			&h.PlaylistName,
			&h.Error,
			&h.TraceID,
			&trigger,
			&h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync history: %w", err)
		}
		h.Status = models.SyncStatus(status)
		h.Trigger = models.Trigger(trigger)
		records = append(records, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync history: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) AcquireLease(ctx context.Context, playlistID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	// Single conditional update: concurrent callers serialize on the row lock
	// and re-check the predicate, so at most one of them matches.
	query := `
		UPDATE playlists
		SET sync_lease_until = $3, sync_lease_owner = $2, updated_at = NOW()
		WHERE playlist_id = $1
		  AND (sync_lease_until IS NULL OR sync_lease_until <= $4 OR sync_lease_owner = $2)
	`
	tag, err := s.pool.Exec(ctx, query, playlistID, owner, now.Add(ttl), now)
	if err != nil {
		return false, db.WrapError(err, "acquire lease")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM playlists WHERE playlist_id = $1)`, playlistID,
	).Scan(&exists); err != nil {
		return false, db.WrapError(err, "acquire lease")
	}
	if !exists {
		return false, db.WrapError(pgx.ErrNoRows, "acquire lease")
	}
	return false, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, playlistID, owner string) error {
	query := `
		UPDATE playlists
		SET sync_lease_until = NULL, sync_lease_owner = NULL, updated_at = NOW()
		WHERE playlist_id = $1 AND sync_lease_owner = $2
	`
	_, err := s.pool.Exec(ctx, query, playlistID, owner)
	return db.WrapError(err, "release lease")
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	if err != nil {
		return fmt.Errorf("run in transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreatePlaylistItem(ctx context.Context, item *models.PlaylistItem) error {
	query := `
		INSERT INTO playlist_items (playlist_id, video_id, position, title, added_at, removed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.Exec(ctx, query,
		item.PlaylistID,
		item.VideoID,
		item.Position,
		item.Title,
		item.AddedAt,
		item.RemovedAt,
		item.UpdatedAt,
	)
	return db.WrapError(err, "create playlist item")
}

func (t *pgTx) UpdatePlaylistItem(ctx context.Context, item *models.PlaylistItem) error {
	query := `
		UPDATE playlist_items
		SET position = $3, title = $4, removed_at = $5, updated_at = $6
		WHERE playlist_id = $1 AND video_id = $2
	`
	tag, err := t.tx.Exec(ctx, query,
		item.PlaylistID,
		item.VideoID,
		item.Position,
		item.Title,
		item.RemovedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return db.WrapError(err, "update playlist item")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update playlist item")
	}
	return nil
}

func (t *pgTx) EnsureVideo(ctx context.Context, videoID, title string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO videos (video_id, title) VALUES ($1, $2) ON CONFLICT (video_id) DO NOTHING`,
		videoID, title)
	return db.WrapError(err, "ensure video")
}

func (t *pgTx) AddMembership(ctx context.Context, videoID, playlistID string) error {
	query := `
		UPDATE videos
		SET playlists = array_append(playlists, $2), updated_at = NOW()
		WHERE video_id = $1 AND NOT ($2 = ANY(playlists))
	`
	_, err := t.tx.Exec(ctx, query, videoID, playlistID)
	return db.WrapError(err, "add membership")
}

func (t *pgTx) RemoveMembership(ctx context.Context, videoID, playlistID string) (int, error) {
	query := `
		UPDATE videos
		SET playlists = array_remove(playlists, $2), updated_at = NOW()
		WHERE video_id = $1
		RETURNING cardinality(playlists)
	`
	var remaining int
	err := t.tx.QueryRow(ctx, query, videoID, playlistID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, db.WrapError(err, "remove membership")
	}
	return remaining, nil
}

func (t *pgTx) DeleteVideoIfOrphaned(ctx context.Context, videoID string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM videos WHERE video_id = $1 AND cardinality(playlists) = 0`, videoID)
	if err != nil {
		return false, db.WrapError(err, "delete orphaned video")
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) SetFingerprint(ctx context.Context, playlistID, fingerprint string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE playlists SET content_fingerprint = $2, updated_at = NOW() WHERE playlist_id = $1`,
		playlistID, fingerprint)
	return db.WrapError(err, "set fingerprint")
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	video := &models.Video{}
	var publishedAt, lastSyncedAt *time.Time
	var tier string
	err := row.Scan(
		&video.VideoID,
		&video.Title,
		&video.Description,
		&publishedAt,
		&video.ChannelID,
		&video.ChannelTitle,
		&video.Tags,
		&video.CategoryID,
		&video.Duration,
		&video.DurationSeconds,
		&video.Thumbnails,
		&video.Statistics.ViewCount,
		&video.Statistics.LikeCount,
		&video.Statistics.CommentCount,
		&video.Status.PrivacyStatus,
		&video.Status.Embeddable,
		&video.Status.MadeForKids,
		&video.Status.UploadStatus,
		&video.Status.License,
		&video.IsShort,
		&tier,
		&video.Playlists,
		&lastSyncedAt,
		&video.SyncVersion,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if publishedAt != nil {
		video.PublishedAt = *publishedAt
	}
	if lastSyncedAt != nil {
		video.LastSyncedAt = *lastSyncedAt
	}
	video.Tier = models.Tier(tier)
	return video, nil
}

func scanPlaylist(row pgx.Row) (*models.Playlist, error) {
	p := &models.Playlist{}
	err := row.Scan(
		&p.PlaylistID,
		&p.Title,
		&p.Description,
		&p.ThumbnailURL,
		&p.ItemCount,
		&p.ChannelTitle,
		&p.IsActive,
		&p.Slug,
		&p.SyncLeaseUntil,
		&p.SyncLeaseOwner,
		&p.ContentFingerprint,
		&p.LastSyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
