package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/counter"
	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/market"
	"github.com/hyeon-dev/guildmarket/internal/service"
)

func idxKey(guildID int64, day string, cat domain.Category) string {
	return fmt.Sprintf("%d|%s|%s", guildID, day, cat)
}

type memIndexStore struct {
	indices   map[string]domain.DailyIndex
	ticks     []domain.IndexTick
	failGuild int64
}

func newMemIndexStore() *memIndexStore {
	return &memIndexStore{indices: make(map[string]domain.DailyIndex)}
}

func (s *memIndexStore) Get(_ context.Context, guildID int64, day string, cat domain.Category) (domain.DailyIndex, error) {
	if s.failGuild != 0 && guildID == s.failGuild {
		return domain.DailyIndex{}, fmt.Errorf("storage down")
	}
	idx, ok := s.indices[idxKey(guildID, day, cat)]
	if !ok {
		return domain.DailyIndex{}, domain.ErrNotFound
	}
	return idx, nil
}

func (s *memIndexStore) Create(_ context.Context, idx domain.DailyIndex) (domain.DailyIndex, error) {
	key := idxKey(idx.GuildID, idx.Day, idx.Category)
	if existing, ok := s.indices[key]; ok {
		return existing, nil
	}
	s.indices[key] = idx
	return idx, nil
}

func (s *memIndexStore) Update(_ context.Context, idx domain.DailyIndex) error {
	s.indices[idxKey(idx.GuildID, idx.Day, idx.Category)] = idx
	return nil
}

func (s *memIndexStore) PriorClose(context.Context, int64, string, domain.Category) (float64, error) {
	return 0, domain.ErrNotFound
}

func (s *memIndexStore) InsertTick(_ context.Context, tick domain.IndexTick) error {
	s.ticks = append(s.ticks, tick)
	return nil
}

func (s *memIndexStore) CountsSum(context.Context, int64, domain.Category, int64, int64) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}

func (s *memIndexStore) TicksSince(context.Context, int64, domain.Category, int64) ([]domain.IndexTick, error) {
	return s.ticks, nil
}

func (s *memIndexStore) TicksBefore(context.Context, int64, int) ([]domain.IndexTick, error) {
	return nil, nil
}

func (s *memIndexStore) DeleteTicksBefore(context.Context, int64) (int64, error) { return 0, nil }

type memQuoteStore struct {
	quotes []domain.QuoteTick
}

func (s *memQuoteStore) Insert(_ context.Context, tick domain.QuoteTick) error {
	s.quotes = append(s.quotes, tick)
	return nil
}

func (s *memQuoteStore) Since(context.Context, int64, domain.Symbol, int64) ([]domain.QuoteTick, error) {
	return s.quotes, nil
}

func (s *memQuoteStore) Before(context.Context, int64, int) ([]domain.QuoteTick, error) {
	return nil, nil
}

func (s *memQuoteStore) DeleteBefore(context.Context, int64) (int64, error) { return 0, nil }

type memOrderStore struct{}

func (memOrderStore) Create(_ context.Context, o domain.Order) (domain.Order, error) { return o, nil }
func (memOrderStore) GetByID(context.Context, int64, int64) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (memOrderStore) ListOpen(context.Context, int64) ([]domain.Order, error) { return nil, nil }
func (memOrderStore) ListOpenByUser(context.Context, int64, int64) ([]domain.Order, error) {
	return nil, nil
}
func (memOrderStore) MarkFilled(context.Context, int64, int64, float64, time.Time) error { return nil }
func (memOrderStore) Cancel(context.Context, int64, int64, int64, time.Time) error       { return nil }

type memSettlementStore struct{}

func (memSettlementStore) Settle(_ context.Context, t domain.Trade) (domain.Trade, error) {
	return t, nil
}

type memSettings struct {
	guilds []int64
}

func (s *memSettings) Get(_ context.Context, guildID int64) (domain.GuildSettings, error) {
	return domain.DefaultSettings(guildID), nil
}
func (s *memSettings) Upsert(context.Context, domain.GuildSettings) error { return nil }
func (s *memSettings) RegisterGuild(_ context.Context, guildID int64) error {
	s.guilds = append(s.guilds, guildID)
	return nil
}
func (s *memSettings) ListGuilds(context.Context) ([]int64, error) { return s.guilds, nil }

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (domain.LockHandle, error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return fakeHandle{l}, nil
}

type fakeHandle struct{ l *fakeLocker }

func (h fakeHandle) Release(context.Context) error {
	h.l.released++
	return nil
}

type fixture struct {
	sched    *Scheduler
	counters *counter.Store
	indices  *memIndexStore
	quotes   *memQuoteStore
	settings *memSettings
	locker   *fakeLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Market.Timezone = "UTC"

	cal, err := market.NewCalendar(cfg.Market.Timezone, cfg.Market.OpenTime, cfg.Market.CloseTime)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	indices := newMemIndexStore()
	quotes := &memQuoteStore{}
	settings := &memSettings{}
	locker := &fakeLocker{}

	engine := market.NewEngine(cfg.Market, indices, cal, logger)
	pricer := market.NewPricer(engine, quotes, nil, logger)
	alerter := market.NewAlerter(cfg.Market.SpikeThreshold, cfg.Market.NewHighStep,
		cfg.Market.AlertCooldown.Duration, 0, nil, settings, nil, nil, logger)
	matcher := service.NewMatcher(memOrderStore{}, memSettlementStore{}, pricer, logger)

	counters := counter.New(2 * time.Minute)
	sched := New(cfg, counters, engine, pricer, alerter, matcher, nil, settings, locker, nil, logger)
	return &fixture{
		sched:    sched,
		counters: counters,
		indices:  indices,
		quotes:   quotes,
		settings: settings,
		locker:   locker,
	}
}

func openInstant() time.Time {
	return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func TestTickAdvancesActiveGuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.counters.RecordMessage(1, openInstant().Add(-time.Minute))
	}
	f.sched.RunTick(ctx, openInstant())

	// Three category ticks plus four quote rows.
	if len(f.indices.ticks) != 3 {
		t.Errorf("index ticks = %d, want 3", len(f.indices.ticks))
	}
	if len(f.quotes.quotes) != len(domain.Instruments) {
		t.Errorf("quote rows = %d, want %d", len(f.quotes.quotes), len(domain.Instruments))
	}
	if f.locker.acquired != 1 || f.locker.released != 1 {
		t.Errorf("lock acquired/released = %d/%d, want 1/1", f.locker.acquired, f.locker.released)
	}

	idx := f.indices.indices[idxKey(1, "2026-03-02", domain.CategoryChat)]
	if idx.Current <= idx.Open {
		t.Errorf("chat index = %v, want above the %v open after heavy chat", idx.Current, idx.Open)
	}
}

func TestTickSkippedWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.locker.held = true
	f.counters.RecordMessage(1, openInstant())

	f.sched.RunTick(context.Background(), openInstant())

	if len(f.indices.ticks) != 0 {
		t.Error("a held lock must skip the whole tick")
	}
}

func TestOneGuildFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.counters.RecordMessage(1, openInstant())
	f.counters.RecordMessage(2, openInstant())
	f.indices.failGuild = 2

	f.sched.RunTick(ctx, openInstant())

	healthy := 0
	for _, tick := range f.indices.ticks {
		if tick.GuildID == 1 {
			healthy++
		}
	}
	if healthy != 3 {
		t.Errorf("healthy guild ticks = %d, want 3", healthy)
	}
}

func TestRegisteredGuildTicksWithoutActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings.RegisterGuild(ctx, 9)

	f.sched.RunTick(ctx, openInstant())

	if len(f.indices.ticks) != 3 {
		t.Errorf("ticks for idle registered guild = %d, want 3", len(f.indices.ticks))
	}
}

func TestClosedMarketTickIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.counters.RecordMessage(1, openInstant())

	f.sched.RunTick(context.Background(), time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC))

	if len(f.indices.ticks) != 0 || len(f.quotes.quotes) != 0 {
		t.Error("no index or quote rows should be written outside the window")
	}
}

func TestClosedMarketTickKeepsCounters(t *testing.T) {
	f := newFixture(t)
	night := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		f.counters.RecordMessage(1, night.Add(-time.Minute))
	}
	f.sched.RunTick(context.Background(), night)

	// Overnight activity must survive closed-window ticks and feed the
	// first open-window snapshot.
	snap := f.counters.SnapshotAndReset(1, openInstant().Add(13*time.Hour))
	if snap.Chat != 10 {
		t.Errorf("chat counter after closed-window tick = %d, want 10", snap.Chat)
	}
}
