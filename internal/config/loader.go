package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GUILDMARKET_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GUILDMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Timezone, "GUILDMARKET_MARKET_TIMEZONE")
	setStr(&cfg.Market.OpenTime, "GUILDMARKET_MARKET_OPEN_TIME")
	setStr(&cfg.Market.CloseTime, "GUILDMARKET_MARKET_CLOSE_TIME")
	setDuration(&cfg.Market.TickInterval, "GUILDMARKET_MARKET_TICK_INTERVAL")
	setInt64(&cfg.Market.StartingBalance, "GUILDMARKET_MARKET_STARTING_BALANCE")
	setFloat64(&cfg.Market.DefaultOpen, "GUILDMARKET_MARKET_DEFAULT_OPEN")
	setFloat64(&cfg.Market.VolatilityScale, "GUILDMARKET_MARKET_VOLATILITY_SCALE")
	setFloat64(&cfg.Market.Decay, "GUILDMARKET_MARKET_DECAY")
	setFloat64(&cfg.Market.MaxChange, "GUILDMARKET_MARKET_MAX_CHANGE")
	setFloat64(&cfg.Market.RelSensitivity, "GUILDMARKET_MARKET_REL_SENSITIVITY")
	setFloat64(&cfg.Market.RelClampMin, "GUILDMARKET_MARKET_REL_CLAMP_MIN")
	setFloat64(&cfg.Market.RelClampMax, "GUILDMARKET_MARKET_REL_CLAMP_MAX")
	setFloat64(&cfg.Market.SpikeThreshold, "GUILDMARKET_MARKET_SPIKE_THRESHOLD")
	setFloat64(&cfg.Market.NewHighStep, "GUILDMARKET_MARKET_NEW_HIGH_STEP")
	setDuration(&cfg.Market.AlertCooldown, "GUILDMARKET_MARKET_ALERT_COOLDOWN")
	setDuration(&cfg.Market.AlertWarmup, "GUILDMARKET_MARKET_ALERT_WARMUP")

	// ── Auction ──
	setDuration(&cfg.Auction.MinDuration, "GUILDMARKET_AUCTION_MIN_DURATION")
	setDuration(&cfg.Auction.MaxDuration, "GUILDMARKET_AUCTION_MAX_DURATION")
	setDuration(&cfg.Auction.FinalizerInterval, "GUILDMARKET_AUCTION_FINALIZER_INTERVAL")
	setInt(&cfg.Auction.FinalizerBatch, "GUILDMARKET_AUCTION_FINALIZER_BATCH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GUILDMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GUILDMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GUILDMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GUILDMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GUILDMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GUILDMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GUILDMARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GUILDMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GUILDMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GUILDMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GUILDMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GUILDMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GUILDMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GUILDMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GUILDMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GUILDMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GUILDMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GUILDMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "GUILDMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GUILDMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GUILDMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GUILDMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GUILDMARKET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "GUILDMARKET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "GUILDMARKET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "GUILDMARKET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "GUILDMARKET_ARCHIVE_BATCH_SIZE")

	// ── Feed ──
	setStr(&cfg.Feed.GatewayURL, "GUILDMARKET_FEED_GATEWAY_URL")
	setStr(&cfg.Feed.Token, "GUILDMARKET_FEED_TOKEN")
	setDuration(&cfg.Feed.ReconnectMin, "GUILDMARKET_FEED_RECONNECT_MIN")
	setDuration(&cfg.Feed.ReconnectMax, "GUILDMARKET_FEED_RECONNECT_MAX")
	setDuration(&cfg.Feed.PingInterval, "GUILDMARKET_FEED_PING_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GUILDMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GUILDMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GUILDMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GUILDMARKET_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GUILDMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GUILDMARKET_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GUILDMARKET_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "GUILDMARKET_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GUILDMARKET_MODE")
	setStr(&cfg.LogLevel, "GUILDMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
