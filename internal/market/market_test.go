package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustCalendar() *Calendar {
	cal, err := NewCalendar("Asia/Seoul", "09:00", "21:00")
	if err != nil {
		panic(err)
	}
	return cal
}

// kst returns an instant on 2026-03-02 at the given KST clock time.
func kst(hour, min int) time.Time {
	loc, _ := time.LoadLocation("Asia/Seoul")
	return time.Date(2026, 3, 2, hour, min, 0, 0, loc)
}

// ---------------------------------------------------------------------------
// In-memory fakes of the domain interfaces.
// ---------------------------------------------------------------------------

type fakeIndexStore struct {
	indices map[string]domain.DailyIndex
	ticks   []domain.IndexTick
	prior   map[string]float64 // (guild|cat) → prior close
}

func newFakeIndexStore() *fakeIndexStore {
	return &fakeIndexStore{
		indices: make(map[string]domain.DailyIndex),
		prior:   make(map[string]float64),
	}
}

func idxKey(guildID int64, day string, cat domain.Category) string {
	return fmt.Sprintf("%d|%s|%s", guildID, day, cat)
}

func (s *fakeIndexStore) Get(_ context.Context, guildID int64, day string, cat domain.Category) (domain.DailyIndex, error) {
	idx, ok := s.indices[idxKey(guildID, day, cat)]
	if !ok {
		return domain.DailyIndex{}, domain.ErrNotFound
	}
	return idx, nil
}

func (s *fakeIndexStore) Create(_ context.Context, idx domain.DailyIndex) (domain.DailyIndex, error) {
	key := idxKey(idx.GuildID, idx.Day, idx.Category)
	if existing, ok := s.indices[key]; ok {
		return existing, nil
	}
	s.indices[key] = idx
	return idx, nil
}

func (s *fakeIndexStore) Update(_ context.Context, idx domain.DailyIndex) error {
	s.indices[idxKey(idx.GuildID, idx.Day, idx.Category)] = idx
	return nil
}

func (s *fakeIndexStore) PriorClose(_ context.Context, guildID int64, _ string, cat domain.Category) (float64, error) {
	v, ok := s.prior[fmt.Sprintf("%d|%s", guildID, cat)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return v, nil
}

func (s *fakeIndexStore) InsertTick(_ context.Context, tick domain.IndexTick) error {
	s.ticks = append(s.ticks, tick)
	return nil
}

func (s *fakeIndexStore) CountsSum(_ context.Context, guildID int64, cat domain.Category, fromMinute, toMinute int64) (int64, int64, int64, error) {
	var chat, react, voice int64
	for _, t := range s.ticks {
		if t.GuildID == guildID && t.Category == cat && t.Minute >= fromMinute && t.Minute <= toMinute {
			chat += t.ChatCount
			react += t.ReactCount
			voice += t.VoiceCount
		}
	}
	return chat, react, voice, nil
}

func (s *fakeIndexStore) TicksSince(_ context.Context, guildID int64, cat domain.Category, sinceMinute int64) ([]domain.IndexTick, error) {
	var out []domain.IndexTick
	for _, t := range s.ticks {
		if t.GuildID == guildID && t.Category == cat && t.Minute >= sinceMinute {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeIndexStore) TicksBefore(_ context.Context, cutoffMinute int64, limit int) ([]domain.IndexTick, error) {
	var out []domain.IndexTick
	for _, t := range s.ticks {
		if t.Minute < cutoffMinute && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeIndexStore) DeleteTicksBefore(_ context.Context, cutoffMinute int64) (int64, error) {
	kept := s.ticks[:0]
	var n int64
	for _, t := range s.ticks {
		if t.Minute < cutoffMinute {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.ticks = kept
	return n, nil
}

type fakeQuoteStore struct {
	quotes []domain.QuoteTick
}

func (s *fakeQuoteStore) Insert(_ context.Context, tick domain.QuoteTick) error {
	s.quotes = append(s.quotes, tick)
	return nil
}

func (s *fakeQuoteStore) Since(_ context.Context, guildID int64, sym domain.Symbol, sinceMinute int64) ([]domain.QuoteTick, error) {
	var out []domain.QuoteTick
	for _, q := range s.quotes {
		if q.GuildID == guildID && q.Symbol == sym && q.Minute >= sinceMinute {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuoteStore) Before(_ context.Context, cutoffMinute int64, limit int) ([]domain.QuoteTick, error) {
	var out []domain.QuoteTick
	for _, q := range s.quotes {
		if q.Minute < cutoffMinute && len(out) < limit {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuoteStore) DeleteBefore(_ context.Context, cutoffMinute int64) (int64, error) {
	kept := s.quotes[:0]
	var n int64
	for _, q := range s.quotes {
		if q.Minute < cutoffMinute {
			n++
			continue
		}
		kept = append(kept, q)
	}
	s.quotes = kept
	return n, nil
}

type fakeQuoteCache struct {
	values map[string]float64
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{values: make(map[string]float64)}
}

func (c *fakeQuoteCache) Set(_ context.Context, guildID int64, sym domain.Symbol, price float64) error {
	c.values[fmt.Sprintf("%d|%s", guildID, sym)] = price
	return nil
}

func (c *fakeQuoteCache) Get(_ context.Context, guildID int64, sym domain.Symbol) (float64, bool, error) {
	v, ok := c.values[fmt.Sprintf("%d|%s", guildID, sym)]
	return v, ok, nil
}

type fakeSettingsStore struct {
	settings map[int64]domain.GuildSettings
	guilds   []int64
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{settings: make(map[int64]domain.GuildSettings)}
}

func (s *fakeSettingsStore) Get(_ context.Context, guildID int64) (domain.GuildSettings, error) {
	if v, ok := s.settings[guildID]; ok {
		return v, nil
	}
	return domain.DefaultSettings(guildID), nil
}

func (s *fakeSettingsStore) Upsert(_ context.Context, v domain.GuildSettings) error {
	s.settings[v.GuildID] = v
	return nil
}

func (s *fakeSettingsStore) RegisterGuild(_ context.Context, guildID int64) error {
	for _, g := range s.guilds {
		if g == guildID {
			return nil
		}
	}
	s.guilds = append(s.guilds, guildID)
	return nil
}

func (s *fakeSettingsStore) ListGuilds(_ context.Context) ([]int64, error) {
	return s.guilds, nil
}

// fakeLimiter allows the first call per key and refuses repeats, mimicking a
// cooldown window that never expires within a test.
type fakeLimiter struct {
	seen map[string]int
}

func newFakeLimiter() *fakeLimiter { return &fakeLimiter{seen: make(map[string]int)} }

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

type fakeNotifier struct {
	sent   []string
	alerts []domain.Alert
	fail   bool
}

func (n *fakeNotifier) Send(_ context.Context, alert domain.Alert) error {
	if n.fail {
		return fmt.Errorf("webhook down")
	}
	n.sent = append(n.sent, alert.Event)
	n.alerts = append(n.alerts, alert)
	return nil
}

type fakeBus struct {
	published []string
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ any) error {
	b.published = append(b.published, channel)
	return nil
}
