// Package quota tracks estimated YouTube Data API quota consumption.
package quota

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/metrics"
	"github.com/ad-tracker/youtube-playlist-sync-go/pkg/logger"
)

// Costs of the list calls the sync pipeline makes.
const (
	CostList = 1
)

// Manager keeps today's quota usage in memory. The counter resets at UTC
// midnight, matching the API's own quota day.
type Manager struct {
	mu               sync.Mutex
	dailyLimit       int
	thresholdPercent int // Stop starting new work when this % of quota is used
	used             int
	day              time.Time
	now              func() time.Time
}

// NewManager creates a new quota manager.
func NewManager(dailyLimit, thresholdPercent int) *Manager {
	if dailyLimit <= 0 {
		dailyLimit = 10000 // YouTube API v3 default
	}
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = 90
	}

	m := &Manager{
		dailyLimit:       dailyLimit,
		thresholdPercent: thresholdPercent,
		now:              time.Now,
	}
	m.day = m.today()
	return m
}

// Record adds cost units for operation.
func (m *Manager) Record(operation string, cost int) {
	m.mu.Lock()
	m.rollover()
	m.used += cost
	used := m.used
	m.mu.Unlock()

	metrics.YouTubeQuotaUsed.Set(float64(used))
	logger.Log.Debug("Quota used",
		zap.String("operation", operation),
		zap.Int("cost", cost),
		zap.Int("used", used),
		zap.Int("dailyLimit", m.dailyLimit))
}

// Available reports whether required more units fit under the threshold.
func (m *Manager) Available(required int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	threshold := (m.dailyLimit * m.thresholdPercent) / 100
	if m.used+required > threshold {
		logger.Log.Warn("Quota threshold reached",
			zap.Int("used", m.used),
			zap.Int("required", required),
			zap.Int("threshold", threshold))
		return false
	}
	return true
}

// Used returns the units recorded since the last reset.
func (m *Manager) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.used
}

// UsagePercentage returns the share of the daily limit used so far.
func (m *Manager) UsagePercentage() float64 {
	return float64(m.Used()) / float64(m.dailyLimit) * 100
}

func (m *Manager) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}

// rollover must be called with mu held.
func (m *Manager) rollover() {
	if today := m.today(); today.After(m.day) {
		m.day = today
		m.used = 0
	}
}
