package domain

import (
	"context"
	"time"
)

// QuoteCache is the hot-path cache for the latest instrument price per
// guild. The database remains the source of truth; a cache miss falls
// through to Instrument Pricing.
type QuoteCache interface {
	Set(ctx context.Context, guildID int64, sym Symbol, price float64) error
	Get(ctx context.Context, guildID int64, sym Symbol) (float64, bool, error)
}

// LockHandle releases a held distributed lock.
type LockHandle interface {
	Release(ctx context.Context) error
}

// Locker provides a distributed mutex so only one instance runs the minute
// tick. Acquire returns ErrLockHeld when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// RateLimiter bounds how often a keyed event may fire inside a sliding
// window; the alert cooldown uses limit=1.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus publishes tick and alert events for external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// GuildRoster answers guild membership questions; backed by the event feed's
// view of the frontend gateway.
type GuildRoster interface {
	IsMember(ctx context.Context, guildID, userID int64) (bool, error)
}
