// Package config defines the top-level configuration for the guild market
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GUILDMARKET_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Auction  AuctionConfig  `toml:"auction"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Feed     FeedConfig     `toml:"feed"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds every tunable of the index engine, instrument pricing,
// and the trading window.
type MarketConfig struct {
	Timezone        string   `toml:"timezone"`
	OpenTime        string   `toml:"open_time"`  // HH:MM, inclusive
	CloseTime       string   `toml:"close_time"` // HH:MM, exclusive
	TickInterval    duration `toml:"tick_interval"`
	StartingBalance int64    `toml:"starting_balance"`
	DefaultOpen     float64  `toml:"default_open"`
	BandLower       float64  `toml:"band_lower"` // fraction of open
	BandUpper       float64  `toml:"band_upper"` // fraction of open
	VolatilityScale float64  `toml:"volatility_scale"`
	Decay           float64  `toml:"decay"` // per-minute downward drift, 0 disables
	MaxChange       float64  `toml:"max_change"`
	OwnWeight       float64  `toml:"own_weight"`
	CrossWeight     float64  `toml:"cross_weight"`
	SpeedBonus      float64  `toml:"speed_bonus"`
	GapThreshold    duration `toml:"gap_threshold"`
	GapCap          duration `toml:"gap_cap"`
	RelWindow       duration `toml:"rel_window"`
	RelLag          duration `toml:"rel_lag"`
	RelSensitivity  float64  `toml:"rel_sensitivity"`
	RelClampMin     float64  `toml:"rel_clamp_min"`
	RelClampMax     float64  `toml:"rel_clamp_max"`
	SpikeThreshold  float64  `toml:"spike_threshold"`
	NewHighStep     float64  `toml:"new_high_step"`
	AlertCooldown   duration `toml:"alert_cooldown"`
	AlertWarmup     duration `toml:"alert_warmup"`
}

// AuctionConfig holds auction engine parameters.
type AuctionConfig struct {
	MinDuration       duration `toml:"min_duration"`
	MaxDuration       duration `toml:"max_duration"`
	FinalizerInterval duration `toml:"finalizer_interval"`
	FinalizerBatch    int      `toml:"finalizer_batch"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds tick cold-storage parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// FeedConfig holds the guild event gateway connection parameters.
type FeedConfig struct {
	GatewayURL     string   `toml:"gateway_url"`
	Token          string   `toml:"token"`
	ReconnectMin   duration `toml:"reconnect_min"`
	ReconnectMax   duration `toml:"reconnect_max"`
	PingInterval   duration `toml:"ping_interval"`
	HandshakeGrace duration `toml:"handshake_grace"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Timezone:        "Asia/Seoul",
			OpenTime:        "09:00",
			CloseTime:       "21:00",
			TickInterval:    duration{time.Minute},
			StartingBalance: 1000,
			DefaultOpen:     100.0,
			BandLower:       0.5,
			BandUpper:       2.0,
			VolatilityScale: 8.0,
			Decay:           0.001,
			MaxChange:       0.02,
			OwnWeight:       1.0,
			CrossWeight:     0.3,
			SpeedBonus:      0.5,
			GapThreshold:    duration{60 * time.Second},
			GapCap:          duration{120 * time.Second},
			RelWindow:       duration{5 * time.Minute},
			RelLag:          duration{time.Hour},
			RelSensitivity:  0.8,
			RelClampMin:     0.8,
			RelClampMax:     1.3,
			SpikeThreshold:  0.01,
			NewHighStep:     0.005,
			AlertCooldown:   duration{10 * time.Minute},
			AlertWarmup:     duration{2 * time.Minute},
		},
		Auction: AuctionConfig{
			MinDuration:       duration{time.Hour},
			MaxDuration:       duration{30 * 24 * time.Hour},
			FinalizerInterval: duration{time.Minute},
			FinalizerBatch:    50,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "guildmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "guildmarket-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			BatchSize:     5000,
		},
		Feed: FeedConfig{
			GatewayURL:     "ws://localhost:8080/events",
			ReconnectMin:   duration{time.Second},
			ReconnectMax:   duration{time.Minute},
			PingInterval:   duration{30 * time.Second},
			HandshakeGrace: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"index_spike_up", "index_spike_down", "index_new_high", "error"},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8090,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":      true,
	"scheduler": true,
	"feed":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// parseClock parses an HH:MM string into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, scheduler, feed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("market: unknown timezone %q", c.Market.Timezone))
	}
	open, errOpen := parseClock(c.Market.OpenTime)
	if errOpen != nil {
		errs = append(errs, fmt.Sprintf("market: open_time %q must be HH:MM", c.Market.OpenTime))
	}
	close_, errClose := parseClock(c.Market.CloseTime)
	if errClose != nil {
		errs = append(errs, fmt.Sprintf("market: close_time %q must be HH:MM", c.Market.CloseTime))
	}
	if errOpen == nil && errClose == nil && open >= close_ {
		errs = append(errs, "market: open_time must be before close_time")
	}
	if c.Market.TickInterval.Duration <= 0 {
		errs = append(errs, "market: tick_interval must be positive")
	}
	if c.Market.StartingBalance < 0 {
		errs = append(errs, "market: starting_balance must be >= 0")
	}
	if c.Market.DefaultOpen <= 0 {
		errs = append(errs, "market: default_open must be > 0")
	}
	if c.Market.BandLower <= 0 || c.Market.BandLower >= 1 {
		errs = append(errs, "market: band_lower must be in (0, 1)")
	}
	if c.Market.BandUpper <= 1 {
		errs = append(errs, "market: band_upper must be > 1")
	}
	if c.Market.VolatilityScale <= 0 {
		errs = append(errs, "market: volatility_scale must be > 0")
	}
	if c.Market.Decay < 0 {
		errs = append(errs, "market: decay must be >= 0")
	}
	if c.Market.MaxChange <= 0 || c.Market.MaxChange >= 1 {
		errs = append(errs, "market: max_change must be in (0, 1)")
	}
	if c.Market.RelSensitivity < 0 || c.Market.RelSensitivity > 1 {
		errs = append(errs, "market: rel_sensitivity must be in [0, 1]")
	}
	if c.Market.RelClampMin <= 0 || c.Market.RelClampMin > 1 {
		errs = append(errs, "market: rel_clamp_min must be in (0, 1]")
	}
	if c.Market.RelClampMax < 1 {
		errs = append(errs, "market: rel_clamp_max must be >= 1")
	}
	if c.Market.RelClampMin > c.Market.RelClampMax {
		errs = append(errs, "market: rel_clamp_min must not exceed rel_clamp_max")
	}
	if c.Market.SpikeThreshold <= 0 {
		errs = append(errs, "market: spike_threshold must be > 0")
	}
	if c.Market.NewHighStep <= 0 {
		errs = append(errs, "market: new_high_step must be > 0")
	}

	// Auction
	if c.Auction.MinDuration.Duration <= 0 {
		errs = append(errs, "auction: min_duration must be positive")
	}
	if c.Auction.MaxDuration.Duration < c.Auction.MinDuration.Duration {
		errs = append(errs, "auction: max_duration must be >= min_duration")
	}
	if c.Auction.FinalizerBatch < 1 {
		errs = append(errs, "auction: finalizer_batch must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Feed
	needsFeed := c.Mode == "full" || c.Mode == "feed"
	if needsFeed && c.Feed.GatewayURL == "" {
		errs = append(errs, "feed: gateway_url must not be empty for mode "+c.Mode)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
