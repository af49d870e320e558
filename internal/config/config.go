package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Threshold values are
// empirically chosen; the defaults should only change when a measurement
// demands it.
type Config struct {
	// LogPath is the game client log file to tail.
	LogPath string `yaml:"log_path"`
	// LogEncoding is the client log charset: "utf-8" or "windows-1252".
	LogEncoding string `yaml:"log_encoding"`
	// DatabasePath is the SQLite file holding slots, deltas, runs and prices.
	DatabasePath string `yaml:"database_path"`
	// DebugLogPath receives the application's own diagnostics.
	DebugLogPath string `yaml:"debug_log_path"`

	Season   string `yaml:"season"`
	Currency string `yaml:"currency"`

	PollIntervalMS   int `yaml:"poll_interval_ms"`
	SnapshotGapMS    int `yaml:"snapshot_gap_ms"`
	IdentitySettleMS int `yaml:"identity_settle_ms"`
	IdentityStaleSec int `yaml:"identity_stale_sec"`
	PriceTTLSec      int `yaml:"price_ttl_sec"`
	RetryCeiling     int `yaml:"retry_ceiling"`

	PriceSync PriceSyncConfig `yaml:"price_sync"`
}

// PriceSyncConfig configures the optional price submission service.
type PriceSyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Defaults returns the configuration with the source's empirical constants.
func Defaults() *Config {
	return &Config{
		LogPath:          defaultLogPath(),
		LogEncoding:      "utf-8",
		DatabasePath:     "loottrack.db",
		DebugLogPath:     "loottrack.log",
		Season:           "current",
		Currency:         "gold",
		PollIntervalMS:   500,
		SnapshotGapMS:    1500,
		IdentitySettleMS: 2000,
		IdentityStaleSec: 30,
		PriceTTLSec:      60,
		RetryCeiling:     5,
	}
}

// Duration accessors so callers never re-derive units.
func (c *Config) PollInterval() time.Duration   { return time.Duration(c.PollIntervalMS) * time.Millisecond }
func (c *Config) SnapshotGap() time.Duration    { return time.Duration(c.SnapshotGapMS) * time.Millisecond }
func (c *Config) IdentitySettle() time.Duration { return time.Duration(c.IdentitySettleMS) * time.Millisecond }
func (c *Config) IdentityStaleTTL() time.Duration {
	return time.Duration(c.IdentityStaleSec) * time.Second
}
func (c *Config) PriceTTL() time.Duration { return time.Duration(c.PriceTTLSec) * time.Second }

// Load reads a YAML configuration file, falling back to defaults for any
// field the file omits, then applies environment overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogPath = getEnv("LOOTTRACK_LOG_PATH", c.LogPath)
	c.LogEncoding = getEnv("LOOTTRACK_LOG_ENCODING", c.LogEncoding)
	c.DatabasePath = getEnv("LOOTTRACK_DB_PATH", c.DatabasePath)
	c.Season = getEnv("LOOTTRACK_SEASON", c.Season)
	c.Currency = getEnv("LOOTTRACK_CURRENCY", c.Currency)
	c.PriceSync.BaseURL = getEnv("LOOTTRACK_SYNC_URL", c.PriceSync.BaseURL)
	c.PriceSync.APIKey = getEnv("LOOTTRACK_SYNC_KEY", c.PriceSync.APIKey)
	if v := os.Getenv("LOOTTRACK_SYNC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.PriceSync.Enabled = enabled
		}
	}
}

func (c *Config) validate() error {
	if c.LogPath == "" {
		return fmt.Errorf("log_path must be set")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must be set")
	}
	switch c.LogEncoding {
	case "utf-8", "windows-1252":
	default:
		return fmt.Errorf("unsupported log_encoding %q", c.LogEncoding)
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = Defaults().PollIntervalMS
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = Defaults().RetryCeiling
	}
	return nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Player.log"
	}
	return filepath.Join(home, ".config", "unity3d", "Player.log")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
