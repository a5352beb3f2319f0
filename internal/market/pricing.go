package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Pricer maps instrument symbols to live prices. Category symbols read the
// category's current daily index; the composite returns the unweighted mean
// of all three. The database is the source of truth and the quote cache is
// best-effort.
type Pricer struct {
	engine *Engine
	quotes domain.QuoteStore
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewPricer builds a Pricer over the engine and quote stores. cache may be
// nil when running without Redis.
func NewPricer(engine *Engine, quotes domain.QuoteStore, cache domain.QuoteCache, logger *slog.Logger) *Pricer {
	return &Pricer{
		engine: engine,
		quotes: quotes,
		cache:  cache,
		logger: logger.With(slog.String("component", "pricer")),
	}
}

// Price returns the authoritative current price of a symbol, creating
// today's index rows on demand. Used by settlement and matching.
func (p *Pricer) Price(ctx context.Context, guildID int64, sym domain.Symbol, at time.Time) (float64, error) {
	day := p.engine.Calendar().Day(at)
	price, err := p.price(ctx, guildID, day, sym)
	if err != nil {
		return 0, err
	}
	if p.cache != nil {
		if cerr := p.cache.Set(ctx, guildID, sym, price); cerr != nil {
			p.logger.Warn("quote cache set failed", slog.String("error", cerr.Error()))
		}
	}
	return price, nil
}

func (p *Pricer) price(ctx context.Context, guildID int64, day string, sym domain.Symbol) (float64, error) {
	switch sym {
	case domain.SymbolChatIndex, domain.SymbolVoiceIndex, domain.SymbolReactIndex:
		idx, err := p.engine.EnsureIndex(ctx, guildID, day, categoryOf(sym))
		if err != nil {
			return 0, err
		}
		return idx.Current, nil
	case domain.SymbolComposite:
		var sum float64
		for _, cat := range domain.Categories {
			idx, err := p.engine.EnsureIndex(ctx, guildID, day, cat)
			if err != nil {
				return 0, err
			}
			sum += idx.Current
		}
		return sum / float64(len(domain.Categories)), nil
	default:
		return 0, fmt.Errorf("market: price %q: %w", sym, domain.ErrUnknownSymbol)
	}
}

// Quote returns a display price, serving from the cache when possible and
// falling back to the authoritative path on a miss.
func (p *Pricer) Quote(ctx context.Context, guildID int64, sym domain.Symbol, at time.Time) (float64, error) {
	if p.cache != nil {
		if price, ok, err := p.cache.Get(ctx, guildID, sym); err == nil && ok {
			return price, nil
		}
	}
	return p.Price(ctx, guildID, sym, at)
}

// RecordQuotes writes one per-minute quote row per catalog symbol and
// refreshes the cache. Called by the scheduler right after the index tick.
func (p *Pricer) RecordQuotes(ctx context.Context, guildID int64, at time.Time) error {
	minute := p.engine.Calendar().Minute(at)
	for _, inst := range domain.Instruments {
		price, err := p.Price(ctx, guildID, inst.Symbol, at)
		if err != nil {
			return err
		}
		tick := domain.QuoteTick{GuildID: guildID, Symbol: inst.Symbol, Minute: minute, Price: price}
		if err := p.quotes.Insert(ctx, tick); err != nil {
			return fmt.Errorf("market: insert quote: %w", err)
		}
	}
	return nil
}

// History returns quote rows for a symbol since the given minute.
func (p *Pricer) History(ctx context.Context, guildID int64, sym domain.Symbol, sinceMinute int64) ([]domain.QuoteTick, error) {
	return p.quotes.Since(ctx, guildID, sym, sinceMinute)
}

func categoryOf(sym domain.Symbol) domain.Category {
	switch sym {
	case domain.SymbolChatIndex:
		return domain.CategoryChat
	case domain.SymbolVoiceIndex:
		return domain.CategoryVoice
	default:
		return domain.CategoryReact
	}
}
