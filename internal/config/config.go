// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Store        StoreConfig
	RabbitMQ     RabbitMQConfig
	Logging      LoggingConfig
	YouTube      YouTubeConfig
	Webhook      WebhookConfig
	Revalidate   RevalidateConfig
	CDN          CDNConfig
	Site         SiteConfig
	Sync         SyncConfig
	Cache        CacheConfig
	Invalidation InvalidationConfig
	Auth         AuthConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// StoreConfig selects the persistence backend ("postgres" or "memory").
type StoreConfig struct {
	Driver string
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled    bool
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// YouTubeConfig contains YouTube Data API settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	APIKey            string
	Endpoint          string
	RequestsPerSecond float64
	DailyQuota        int
	QuotaThreshold    int
	MaxResults        int
}

// WebhookConfig contains push notification settings and the hub
// subscriptions that feed them.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type WebhookConfig struct {
	Secret         string
	MaxPayloadSize int64
	HubURL         string
	CallbackURL    string
	LeaseSeconds   int
	RenewInterval  time.Duration
	// Channels are channel IDs whose upload feeds are subscribed at the hub.
	Channels []string
}

// RevalidateConfig holds the shared secret for the revalidation endpoint
// (both the one we expose and the one we call on the frontend).
type RevalidateConfig struct {
	Secret  string
	Timeout time.Duration
}

// CDNConfig contains CDN purge API credentials.
type CDNConfig struct {
	APIBase   string
	ZoneID    string
	APIToken  string
	BatchSize int
	Timeout   time.Duration
}

// SiteConfig describes the public site being invalidated.
type SiteConfig struct {
	BaseURL string
}

// SyncConfig controls reconciliation scheduling and leases.
type SyncConfig struct {
	Interval      time.Duration
	LeaseDuration time.Duration
	Concurrency   int
	// Playlists are registered as tracked on startup if not already present.
	Playlists []string
}

// CacheConfig sizes the in-process view cache.
type CacheConfig struct {
	MaxCost     int64
	NumCounters int64
	TTL         time.Duration
}

// InvalidationConfig is the category routing table used to derive paths.
type InvalidationConfig struct {
	CategoryMap        map[string]string
	HomepageCategories []string
}

// AuthConfig lists API keys accepted by admin endpoints.
type AuthConfig struct {
	APIKeys []string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// APP_DATABASE_HOST overrides database.host
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma separated env values arrive as a single element.
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)
	cfg.Invalidation.HomepageCategories = splitList(cfg.Invalidation.HomepageCategories)
	cfg.Sync.Playlists = splitList(cfg.Sync.Playlists)
	cfg.Webhook.Channels = splitList(cfg.Webhook.Channels)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q: must be postgres or memory", c.Store.Driver)
	}
	if c.Sync.LeaseDuration <= 0 {
		return fmt.Errorf("sync.leaseduration must be positive")
	}
	if c.CDN.BatchSize <= 0 || c.CDN.BatchSize > 30 {
		return fmt.Errorf("cdn.batchsize must be between 1 and 30, got %d", c.CDN.BatchSize)
	}
	return nil
}

// ConnString renders the pgx connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "playlist_sync")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	viper.SetDefault("store.driver", "postgres")

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "content.sync")
	viper.SetDefault("rabbitmq.queue", "content.sync.playlists")
	viper.SetDefault("rabbitmq.routingkey", "playlist.synced")

	// YouTube
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.endpoint", "")
	viper.SetDefault("youtube.requestspersecond", 5.0)
	viper.SetDefault("youtube.dailyquota", 10000)
	viper.SetDefault("youtube.quotathreshold", 90)
	viper.SetDefault("youtube.maxresults", 0)

	// Webhook
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("webhook.maxpayloadsize", 1048576) // 1MB
	viper.SetDefault("webhook.huburl", "https://pubsubhubbub.appspot.com/subscribe")
	viper.SetDefault("webhook.callbackurl", "")
	viper.SetDefault("webhook.leaseseconds", 432000) // 5 days
	viper.SetDefault("webhook.renewinterval", 12*time.Hour)
	viper.SetDefault("webhook.channels", []string{})

	// Revalidation
	viper.SetDefault("revalidate.secret", "")
	viper.SetDefault("revalidate.timeout", 5*time.Second)

	// CDN
	viper.SetDefault("cdn.apibase", "https://api.cloudflare.com/client/v4")
	viper.SetDefault("cdn.zoneid", "")
	viper.SetDefault("cdn.apitoken", "")
	viper.SetDefault("cdn.batchsize", 30)
	viper.SetDefault("cdn.timeout", 5*time.Second)

	viper.SetDefault("site.baseurl", "http://localhost:3000")

	// Sync
	viper.SetDefault("sync.interval", 15*time.Minute)
	viper.SetDefault("sync.leaseduration", 30*time.Second)
	viper.SetDefault("sync.concurrency", 1)
	viper.SetDefault("sync.playlists", []string{})

	// In-process cache
	viper.SetDefault("cache.maxcost", 64<<20)
	viper.SetDefault("cache.numcounters", 100000)
	viper.SetDefault("cache.ttl", 10*time.Minute)

	viper.SetDefault("invalidation.categorymap", map[string]string{
		"nation":  "news",
		"bahasa":  "berita",
		"world":   "world",
		"sports":  "sports",
		"videos":  "videos",
		"opinion": "opinion",
	})
	viper.SetDefault("invalidation.homepagecategories", []string{"nation", "bahasa", "videos"})

	viper.SetDefault("auth.apikeys", []string{})

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
