package market

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/domain"
)

func newTestEngine(store *fakeIndexStore, mutate func(*config.MarketConfig)) *Engine {
	cfg := config.Defaults().Market
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine(cfg, store, mustCalendar(), testLogger())
}

func snapshot(guildID int64, chat, react, voice int64, meanGap float64, samples int64, at time.Time) domain.ActivitySnapshot {
	return domain.ActivitySnapshot{
		GuildID: guildID, Chat: chat, React: react, Voice: voice,
		MeanGap: meanGap, GapSamples: samples, At: at,
	}
}

func TestFirstTickOpensAndMoves(t *testing.T) {
	store := newFakeIndexStore()
	e := newTestEngine(store, nil)

	at := kst(10, 0)
	outs, err := e.Tick(context.Background(), snapshot(1, 10, 0, 0, 1.0, 9, at))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outs))
	}

	for _, out := range outs {
		idx := out.Index
		if idx.Open != 100.0 {
			t.Errorf("%s: Open = %v, want 100", idx.Category, idx.Open)
		}
		if idx.Lower != 50.0 || idx.Upper != 200.0 {
			t.Errorf("%s: band = [%v, %v], want [50, 200]", idx.Category, idx.Lower, idx.Upper)
		}
		if idx.Current < 98.0 || idx.Current > 102.0 {
			t.Errorf("%s: Current = %v, want within one 2%% move of 100", idx.Category, idx.Current)
		}
		if math.Abs(out.FracChange) > 0.02+1e-12 {
			t.Errorf("%s: FracChange = %v exceeds per-minute bound", idx.Category, out.FracChange)
		}
	}

	// chat=10 is a strong minute, so the chat index should have moved up to
	// the cap and set a new high.
	chat := outs[0]
	if chat.Index.Category != domain.CategoryChat {
		t.Fatalf("first outcome is %s, want chat", chat.Index.Category)
	}
	if chat.FracChange != 0.02 {
		t.Errorf("chat FracChange = %v, want 0.02", chat.FracChange)
	}
	if !chat.NewHigh {
		t.Error("chat index should report a new high")
	}
	if len(store.ticks) != 3 {
		t.Errorf("stored %d tick rows, want 3", len(store.ticks))
	}
}

func TestTickOutsideWindowIsNoop(t *testing.T) {
	store := newFakeIndexStore()
	e := newTestEngine(store, nil)

	outs, err := e.Tick(context.Background(), snapshot(1, 50, 5, 5, 1.0, 10, kst(22, 0)))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if outs != nil {
		t.Errorf("expected no outcomes outside the window, got %d", len(outs))
	}
	if len(store.indices) != 0 || len(store.ticks) != 0 {
		t.Error("closed-market tick should not touch the store")
	}
}

func TestBandInvariantUnderSustainedDecline(t *testing.T) {
	store := newFakeIndexStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	at := kst(9, 0)
	for i := 0; i < 60; i++ {
		outs, err := e.Tick(ctx, snapshot(1, 0, 0, 0, 999.0, 0, at.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		for _, out := range outs {
			if out.Index.Current < out.Index.Lower || out.Index.Current > out.Index.Upper {
				t.Fatalf("tick %d: %s index %v escaped band [%v, %v]",
					i, out.Index.Category, out.Index.Current, out.Index.Lower, out.Index.Upper)
			}
		}
	}

	// 2% down per idle minute bottoms out at the lower bound within the hour.
	idx, err := e.EnsureIndex(ctx, 1, "2026-03-02", domain.CategoryChat)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if idx.Current != idx.Lower {
		t.Errorf("Current = %v, want clamped to lower bound %v", idx.Current, idx.Lower)
	}
	if idx.Low != idx.Lower {
		t.Errorf("Low = %v, want %v", idx.Low, idx.Lower)
	}
}

func TestEnsureIndexSeedsFromPriorClose(t *testing.T) {
	store := newFakeIndexStore()
	store.prior["1|chat"] = 120.0
	e := newTestEngine(store, nil)

	idx, err := e.EnsureIndex(context.Background(), 1, "2026-03-02", domain.CategoryChat)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if idx.Open != 120.0 || idx.Current != 120.0 {
		t.Errorf("open/current = %v/%v, want 120/120", idx.Open, idx.Current)
	}
	if idx.Lower != 60.0 || idx.Upper != 240.0 {
		t.Errorf("band = [%v, %v], want [60, 240]", idx.Lower, idx.Upper)
	}

	// No history falls back to the default open.
	idx, err = e.EnsureIndex(context.Background(), 1, "2026-03-02", domain.CategoryVoice)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if idx.Open != 100.0 {
		t.Errorf("Open = %v, want default 100", idx.Open)
	}
}

func TestEnsureIndexIsIdempotent(t *testing.T) {
	store := newFakeIndexStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	first, err := e.EnsureIndex(ctx, 1, "2026-03-02", domain.CategoryChat)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	first.Current = 142.0
	if err := store.Update(ctx, first); err != nil {
		t.Fatal(err)
	}

	again, err := e.EnsureIndex(ctx, 1, "2026-03-02", domain.CategoryChat)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if again.Current != 142.0 {
		t.Errorf("second EnsureIndex overwrote state: Current = %v", again.Current)
	}
}

func TestRelativeFactorClamping(t *testing.T) {
	store := newFakeIndexStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()
	minute := kst(15, 0).Unix()

	// Burst of recent activity with a silent hour before it.
	store.ticks = append(store.ticks, domain.IndexTick{
		GuildID: 1, Minute: minute - 60, Category: domain.CategoryChat, ChatCount: 50,
	})
	factor, err := e.relativeFactor(ctx, 1, domain.CategoryChat, minute)
	if err != nil {
		t.Fatalf("relativeFactor: %v", err)
	}
	if factor != e.cfg.RelClampMax {
		t.Errorf("surging factor = %v, want clamp max %v", factor, e.cfg.RelClampMax)
	}

	// The inverse: a busy hour ago, dead now.
	store.ticks = []domain.IndexTick{{
		GuildID: 1, Minute: minute - 3600 - 60, Category: domain.CategoryChat, ChatCount: 100,
	}}
	factor, err = e.relativeFactor(ctx, 1, domain.CategoryChat, minute)
	if err != nil {
		t.Fatalf("relativeFactor: %v", err)
	}
	if factor != e.cfg.RelClampMin {
		t.Errorf("collapsing factor = %v, want clamp min %v", factor, e.cfg.RelClampMin)
	}

	// No history at all is neutral.
	store.ticks = nil
	factor, err = e.relativeFactor(ctx, 1, domain.CategoryChat, minute)
	if err != nil {
		t.Fatalf("relativeFactor: %v", err)
	}
	if factor != 1.0 {
		t.Errorf("neutral factor = %v, want 1", factor)
	}
}

func TestDecayConfigurable(t *testing.T) {
	// A base score of exactly 1.0 isolates the decay term.
	snap := snapshot(1, 1, 0, 0, counterSentinel, 0, kst(10, 0))

	e := newTestEngine(newFakeIndexStore(), nil)
	outs, err := e.Tick(context.Background(), snap)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := outs[0].FracChange; got != -0.001 {
		t.Errorf("default decay: chat FracChange = %v, want -0.001", got)
	}

	e = newTestEngine(newFakeIndexStore(), func(cfg *config.MarketConfig) { cfg.Decay = 0 })
	outs, err = e.Tick(context.Background(), snap)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := outs[0].FracChange; got != 0 {
		t.Errorf("zero decay: chat FracChange = %v, want 0", got)
	}
}

// counterSentinel mirrors the no-sample mean gap the counter store reports.
const counterSentinel = 999.0

func TestSpeedBonusRequiresSamples(t *testing.T) {
	e := newTestEngine(newFakeIndexStore(), nil)

	withBonus := e.baseScore(snapshot(1, 1, 0, 0, 0.0, 5, kst(10, 0)), domain.CategoryChat)
	if want := 1.0 + 0.5; withBonus != want {
		t.Errorf("instant chat baseScore = %v, want %v", withBonus, want)
	}

	noSamples := e.baseScore(snapshot(1, 1, 0, 0, counterSentinel, 0, kst(10, 0)), domain.CategoryChat)
	if noSamples != 1.0 {
		t.Errorf("no-sample baseScore = %v, want 1.0 (no bonus)", noSamples)
	}

	slow := e.baseScore(snapshot(1, 1, 0, 0, 60.0, 5, kst(10, 0)), domain.CategoryChat)
	if slow != 1.0 {
		t.Errorf("gap >= threshold baseScore = %v, want 1.0", slow)
	}
}
