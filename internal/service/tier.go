package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/syncutil"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// TierFunc classifies a video from its engagement snapshot at now.
type TierFunc func(v *models.Video, now time.Time) models.Tier

// Tier thresholds used by ClassifyTier.
const (
	hotWindow       = 48 * time.Hour
	hotMinViews     = 10_000
	trendingWindow  = 7 * 24 * time.Hour
	trendingViews   = 1_000
	engagementFloor = 0.05
	engagementAge   = 30 * 24 * time.Hour
)

// ClassifyTier is the default TierFunc. Recent videos with many views are hot;
// moderately viewed or highly engaging recent videos are trending.
func ClassifyTier(v *models.Video, now time.Time) models.Tier {
	age := now.Sub(v.PublishedAt)
	views := v.Statistics.ViewCount

	if age < hotWindow && views >= hotMinViews {
		return models.TierHot
	}
	if age < trendingWindow && views >= trendingViews {
		return models.TierTrending
	}
	if age < engagementAge && views > 0 {
		engagement := float64(v.Statistics.LikeCount+v.Statistics.CommentCount) / float64(views)
		if engagement >= engagementFloor {
			return models.TierTrending
		}
	}
	return models.TierStandard
}

// videoFromDetails maps remote details onto a Video row. Membership and
// SyncVersion are owned by the store and left unset.
func videoFromDetails(d *models.VideoDetails, tier TierFunc, now time.Time) *models.Video {
	seconds, err := syncutil.ParseISODuration(d.Duration)
	if err != nil && d.Duration != "" {
		logger.Log.Debug("Unparseable video duration",
			zap.String("videoId", d.VideoID),
			zap.String("duration", d.Duration),
			zap.Error(err))
	}

	v := &models.Video{
		VideoID:         d.VideoID,
		Title:           d.Title,
		Description:     d.Description,
		PublishedAt:     d.PublishedAt,
		ChannelID:       d.ChannelID,
		ChannelTitle:    d.ChannelTitle,
		Tags:            d.Tags,
		CategoryID:      d.CategoryID,
		Duration:        d.Duration,
		DurationSeconds: seconds,
		Thumbnails:      d.Thumbnails,
		Statistics:      d.Statistics,
		Status:          d.Status,
		IsShort:         syncutil.IsShort(seconds),
		LastSyncedAt:    now,
	}
	if tier == nil {
		tier = ClassifyTier
	}
	v.Tier = tier(v, now)
	return v
}
