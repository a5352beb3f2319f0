package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// quoteTTL keeps stale prices from surviving a stalled scheduler; the next
// minute tick rewrites the key anyway.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using plain string keys. Each
// (guild, symbol) price lives at "gm:quote:{guildID}:{symbol}" with a short
// TTL.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.rdb}
}

func quoteKey(guildID int64, sym domain.Symbol) string {
	return key("quote", strconv.FormatInt(guildID, 10), string(sym))
}

// Set stores the latest price for an instrument.
func (qc *QuoteCache) Set(ctx context.Context, guildID int64, sym domain.Symbol, price float64) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := qc.rdb.Set(ctx, quoteKey(guildID, sym), val, quoteTTL).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", sym, err)
	}
	return nil
}

// Get retrieves the cached price. A missing key is a miss, not an error.
func (qc *QuoteCache) Get(ctx context.Context, guildID int64, sym domain.Symbol) (float64, bool, error) {
	val, err := qc.rdb.Get(ctx, quoteKey(guildID, sym)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: get quote %s: %w", sym, err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse quote %s: %w", sym, err)
	}
	return price, true, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
