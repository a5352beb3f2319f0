package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/hyeon-dev/guildmarket/internal/blob/s3"
	"github.com/hyeon-dev/guildmarket/internal/cache/redis"
	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/counter"
	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/feed"
	"github.com/hyeon-dev/guildmarket/internal/notify"
	"github.com/hyeon-dev/guildmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Ledger     domain.LedgerStore
	Holdings   domain.HoldingStore
	Settlement domain.SettlementStore
	Indices    domain.IndexStore
	Quotes     domain.QuoteStore
	Orders     domain.OrderStore
	Trades     domain.TradeStore
	Auctions   domain.AuctionStore
	Settings   domain.SettingsStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	Locker      domain.Locker
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver *s3blob.Archiver

	// Activity tracking
	Counters *counter.Store
	Roster   *feed.Roster

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that run the tick scheduler and therefore
// need the quote cache, rate limiter, distributed lock, and signal bus.
func needsRedis(mode string) bool {
	switch mode {
	case "full", "scheduler":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists at least guild registrations) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if err := pgClient.SeedInstruments(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: seed instruments: %w", err)
		}
	}

	pool := pgClient.Pool()
	opening := cfg.Market.StartingBalance
	deps.Ledger = postgres.NewLedgerStore(pool, opening)
	deps.Holdings = postgres.NewHoldingStore(pool)
	deps.Settlement = postgres.NewSettlementStore(pool, opening)
	deps.Indices = postgres.NewIndexStore(pool)
	deps.Quotes = postgres.NewQuoteStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Trades = postgres.NewTradeStore(pool)
	deps.Auctions = postgres.NewAuctionStore(pool, opening)
	deps.Settings = postgres.NewSettingsStore(pool)

	// --- Redis (scheduler-bearing modes only) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locker = redis.NewLocker(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (tick cold storage, only when archiving is on) ---
	if cfg.Archive.Enabled && needsRedis(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 health: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, deps.Indices, deps.Quotes,
			cfg.Archive.BatchSize, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.Settings, logger)

	// --- Activity tracking (shared between the gateway and the scheduler) ---
	deps.Counters = counter.New(cfg.Market.GapCap.Duration)
	deps.Roster = feed.NewRoster()

	return deps, cleanup, nil
}
