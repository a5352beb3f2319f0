package market

import (
	"context"
	"errors"
	"testing"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

func newTestPricer(store *fakeIndexStore, quotes *fakeQuoteStore, cache *fakeQuoteCache) *Pricer {
	e := newTestEngine(store, nil)
	var qc domain.QuoteCache
	if cache != nil {
		qc = cache
	}
	return NewPricer(e, quotes, qc, testLogger())
}

func seedIndex(store *fakeIndexStore, guildID int64, day string, cat domain.Category, current float64) {
	store.indices[idxKey(guildID, day, cat)] = domain.DailyIndex{
		GuildID: guildID, Day: day, Category: cat,
		Open: 100, Current: current, Lower: 50, Upper: 200, High: current, Low: current,
	}
}

func TestPriceCategoryAndComposite(t *testing.T) {
	store := newFakeIndexStore()
	day := "2026-03-02"
	seedIndex(store, 1, day, domain.CategoryChat, 110)
	seedIndex(store, 1, day, domain.CategoryVoice, 90)
	seedIndex(store, 1, day, domain.CategoryReact, 100)

	p := newTestPricer(store, &fakeQuoteStore{}, nil)
	ctx := context.Background()
	at := kst(10, 0)

	price, err := p.Price(ctx, 1, domain.SymbolChatIndex, at)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 110 {
		t.Errorf("chat price = %v, want 110", price)
	}

	price, err = p.Price(ctx, 1, domain.SymbolComposite, at)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 100 {
		t.Errorf("composite price = %v, want mean 100", price)
	}
}

func TestPriceUnknownSymbol(t *testing.T) {
	p := newTestPricer(newFakeIndexStore(), &fakeQuoteStore{}, nil)
	_, err := p.Price(context.Background(), 1, domain.Symbol("DOGE"), kst(10, 0))
	if !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}
}

func TestPriceSelfHealsMissingDay(t *testing.T) {
	store := newFakeIndexStore()
	p := newTestPricer(store, &fakeQuoteStore{}, nil)

	price, err := p.Price(context.Background(), 1, domain.SymbolVoiceIndex, kst(10, 0))
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 100.0 {
		t.Errorf("fresh-day price = %v, want default open 100", price)
	}
	if len(store.indices) != 1 {
		t.Errorf("lazy creation stored %d indices, want 1", len(store.indices))
	}
}

func TestRecordQuotesWritesAllSymbols(t *testing.T) {
	store := newFakeIndexStore()
	quotes := &fakeQuoteStore{}
	cache := newFakeQuoteCache()
	p := newTestPricer(store, quotes, cache)

	if err := p.RecordQuotes(context.Background(), 1, kst(10, 0)); err != nil {
		t.Fatalf("RecordQuotes: %v", err)
	}
	if len(quotes.quotes) != len(domain.Instruments) {
		t.Errorf("wrote %d quote rows, want %d", len(quotes.quotes), len(domain.Instruments))
	}
	if len(cache.values) != len(domain.Instruments) {
		t.Errorf("cached %d prices, want %d", len(cache.values), len(domain.Instruments))
	}
}

func TestQuoteServesFromCache(t *testing.T) {
	store := newFakeIndexStore()
	cache := newFakeQuoteCache()
	cache.values["1|IDX_CHAT"] = 55.5
	p := newTestPricer(store, &fakeQuoteStore{}, cache)

	price, err := p.Quote(context.Background(), 1, domain.SymbolChatIndex, kst(10, 0))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if price != 55.5 {
		t.Errorf("cached quote = %v, want 55.5", price)
	}
	if len(store.indices) != 0 {
		t.Error("cache hit should not touch the index store")
	}
}
