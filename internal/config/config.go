// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Durations are stored in the unit named by the key and converted by the
//   accessor methods.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the admin HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Storage selects the persistence driver: sqlite or memory.
	Storage string `koanf:"storage"`
	// DatabasePath is the sqlite file, created with its directory if missing.
	DatabasePath string `koanf:"database_path"`

	// BotToken authenticates against the Bot API. Only serve needs it.
	BotToken       string `koanf:"bot_token"`
	TelegramAPIURL string `koanf:"telegram_api_url"`

	CheckIntervalMinutes    int  `koanf:"check_interval_minutes"`
	RequestDelaySeconds     int  `koanf:"request_delay_seconds"`
	MaxRetryAttempts        int  `koanf:"max_retry_attempts"`
	MaxItemsPerNotification int  `koanf:"max_items_per_notification"`
	CheckOnStart            bool `koanf:"check_on_start"`

	DefaultAppID     int64 `koanf:"default_app_id"`
	DefaultContextID int64 `koanf:"default_context_id"`

	// ProxyURL routes inventory requests through an HTTP proxy when set.
	ProxyURL          string `koanf:"proxy_url"`
	InventoryPageSize int    `koanf:"inventory_page_size"`
	SteamBaseURL      string `koanf:"steam_base_url"`

	// SnapshotRetentionDays drops snapshot rows not seen for this long; 0
	// keeps them forever.
	SnapshotRetentionDays int `koanf:"snapshot_retention_days"`
	PruneIntervalHours    int `koanf:"prune_interval_hours"`

	SessionTTLMinutes int `koanf:"session_ttl_minutes"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		Storage:                 StorageSQLite,
		DatabasePath:            "data/bot.db",
		TelegramAPIURL:          "https://api.telegram.org",
		CheckIntervalMinutes:    10,
		RequestDelaySeconds:     3,
		MaxRetryAttempts:        3,
		MaxItemsPerNotification: 10,
		DefaultAppID:            730,
		DefaultContextID:        2,
		InventoryPageSize:       2000,
		SteamBaseURL:            "https://steamcommunity.com/inventory",
		SnapshotRetentionDays:   30,
		PruneIntervalHours:      24,
		SessionTTLMinutes:       10,
	}
}

// CheckInterval is the time between scheduled cycles.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// RequestDelay is the minimum gap between two inventory requests.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// SnapshotRetention is how long an unseen snapshot row is kept.
func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.SnapshotRetentionDays) * 24 * time.Hour
}

// PruneInterval is the time between retention passes.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalHours) * time.Hour
}

// SessionTTL bounds an unfinished add flow in the bot.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.Storage {
	case StorageSQLite:
		if c.DatabasePath == "" {
			return invalid("database_path must not be empty for sqlite storage")
		}
	case StorageMemory:
	default:
		return invalid("storage must be %q or %q, got %q", StorageSQLite, StorageMemory, c.Storage)
	}
	if c.CheckIntervalMinutes <= 0 {
		return invalid("check_interval_minutes must be positive")
	}
	if c.RequestDelaySeconds < 0 {
		return invalid("request_delay_seconds must not be negative")
	}
	if c.MaxRetryAttempts <= 0 {
		return invalid("max_retry_attempts must be positive")
	}
	if c.MaxItemsPerNotification <= 0 {
		return invalid("max_items_per_notification must be positive")
	}
	if c.DefaultAppID <= 0 || c.DefaultContextID <= 0 {
		return invalid("default_app_id and default_context_id must be positive")
	}
	if c.InventoryPageSize <= 0 {
		return invalid("inventory_page_size must be positive")
	}
	if c.SnapshotRetentionDays < 0 {
		return invalid("snapshot_retention_days must not be negative")
	}
	if c.PruneIntervalHours <= 0 {
		return invalid("prune_interval_hours must be positive")
	}
	if c.SessionTTLMinutes <= 0 {
		return invalid("session_ttl_minutes must be positive")
	}
	if c.ProxyURL != "" {
		if u, err := url.Parse(c.ProxyURL); err != nil || u.Host == "" {
			return invalid("proxy_url %q is not a valid URL", c.ProxyURL)
		}
	}
	return nil
}

// ValidateServe additionally requires what the long-running service needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.BotToken) == "" {
		return invalid("bot_token is required (set STEAMWATCH_BOT_TOKEN)")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
