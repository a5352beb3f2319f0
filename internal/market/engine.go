package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Engine computes the per-minute index update for every category of a guild.
// It owns lazy index creation, so the tick path and the read path agree on
// one opening rule.
type Engine struct {
	cfg     config.MarketConfig
	indices domain.IndexStore
	cal     *Calendar
	logger  *slog.Logger
}

// NewEngine builds an Engine over the given index store and calendar.
func NewEngine(cfg config.MarketConfig, indices domain.IndexStore, cal *Calendar, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		indices: indices,
		cal:     cal,
		logger:  logger.With(slog.String("component", "index_engine")),
	}
}

// Calendar exposes the engine's trading calendar.
func (e *Engine) Calendar() *Calendar { return e.cal }

// TickOutcome is the result of updating one category index for one minute.
type TickOutcome struct {
	Index      domain.DailyIndex
	Old        float64
	FracChange float64 // applied fractional change, before band clamping
	NewHigh    bool
	PrevHigh   float64
}

// EnsureIndex returns the guild's index for the given day and category,
// creating it when absent. A new day opens at the prior day's close, or at
// the configured default when the guild has no history; the band is fixed at
// creation and never moves.
func (e *Engine) EnsureIndex(ctx context.Context, guildID int64, day string, cat domain.Category) (domain.DailyIndex, error) {
	idx, err := e.indices.Get(ctx, guildID, day, cat)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.DailyIndex{}, fmt.Errorf("market: get index: %w", err)
	}

	open := e.cfg.DefaultOpen
	if prior, perr := e.indices.PriorClose(ctx, guildID, day, cat); perr == nil && prior > 0 {
		open = prior
	} else if perr != nil && !errors.Is(perr, domain.ErrNotFound) {
		return domain.DailyIndex{}, fmt.Errorf("market: prior close: %w", perr)
	}

	idx = domain.DailyIndex{
		GuildID:  guildID,
		Day:      day,
		Category: cat,
		Open:     open,
		Current:  open,
		Lower:    open * e.cfg.BandLower,
		Upper:    open * e.cfg.BandUpper,
		High:     open,
		Low:      open,
	}
	created, err := e.indices.Create(ctx, idx)
	if err != nil {
		return domain.DailyIndex{}, fmt.Errorf("market: create index: %w", err)
	}
	return created, nil
}

// Tick consumes one minute's activity snapshot and advances all three
// category indices, persisting the new values and their tick rows. It is a
// no-op outside the trading window.
func (e *Engine) Tick(ctx context.Context, snap domain.ActivitySnapshot) ([]TickOutcome, error) {
	if !e.cal.IsOpen(snap.At) {
		return nil, nil
	}
	day := e.cal.Day(snap.At)
	minute := e.cal.Minute(snap.At)

	outcomes := make([]TickOutcome, 0, len(domain.Categories))
	for _, cat := range domain.Categories {
		idx, err := e.EnsureIndex(ctx, snap.GuildID, day, cat)
		if err != nil {
			return outcomes, err
		}

		base := e.baseScore(snap, cat)
		rel, err := e.relativeFactor(ctx, snap.GuildID, cat, minute)
		if err != nil {
			return outcomes, err
		}
		frac := e.fracChange(base, rel)

		old := idx.Current
		prevHigh := idx.High
		next := clamp(old*(1+frac), idx.Lower, idx.Upper)

		idx.Current = next
		if next > idx.High {
			idx.High = next
		}
		if next < idx.Low {
			idx.Low = next
		}
		if err := e.indices.Update(ctx, idx); err != nil {
			return outcomes, fmt.Errorf("market: update index: %w", err)
		}
		tick := domain.IndexTick{
			GuildID:    snap.GuildID,
			Minute:     minute,
			Category:   cat,
			Value:      next,
			Delta:      next - old,
			ChatCount:  snap.Chat,
			ReactCount: snap.React,
			VoiceCount: snap.Voice,
		}
		if err := e.indices.InsertTick(ctx, tick); err != nil {
			return outcomes, fmt.Errorf("market: insert tick: %w", err)
		}

		outcomes = append(outcomes, TickOutcome{
			Index:      idx,
			Old:        old,
			FracChange: frac,
			NewHigh:    idx.High > prevHigh,
			PrevHigh:   prevHigh,
		})
		e.logger.Debug("index tick",
			slog.Int64("guild", snap.GuildID),
			slog.String("category", string(cat)),
			slog.Float64("value", next),
			slog.Float64("change", frac))
	}
	return outcomes, nil
}

// baseScore computes the weighted activity score for one category, favoring
// the category's own raw signal, plus a speed bonus when chat is rapid.
func (e *Engine) baseScore(snap domain.ActivitySnapshot, cat domain.Category) float64 {
	score := e.weighted(cat, snap.Chat, snap.React, snap.Voice)

	threshold := e.cfg.GapThreshold.Duration.Seconds()
	if snap.GapSamples > 0 && snap.MeanGap < threshold {
		score += e.cfg.SpeedBonus * (threshold - snap.MeanGap) / threshold
	}
	return score
}

// weighted applies the own/cross category weights to raw counts.
func (e *Engine) weighted(cat domain.Category, chat, react, voice int64) float64 {
	w := func(c domain.Category) float64 {
		if c == cat {
			return e.cfg.OwnWeight
		}
		return e.cfg.CrossWeight
	}
	return w(domain.CategoryChat)*float64(chat) +
		w(domain.CategoryReact)*float64(react) +
		w(domain.CategoryVoice)*float64(voice)
}

// relativeFactor compares weighted activity over the trailing window to the
// equivalent window one lag period earlier and blends the ratio toward 1.
func (e *Engine) relativeFactor(ctx context.Context, guildID int64, cat domain.Category, minute int64) (float64, error) {
	window := int64(e.cfg.RelWindow.Duration.Seconds())
	lag := int64(e.cfg.RelLag.Duration.Seconds())

	recentFrom := minute - window + 60
	chat, react, voice, err := e.indices.CountsSum(ctx, guildID, cat, recentFrom, minute)
	if err != nil {
		return 0, fmt.Errorf("market: recent counts: %w", err)
	}
	recent := e.weighted(cat, chat, react, voice)

	chat, react, voice, err = e.indices.CountsSum(ctx, guildID, cat, recentFrom-lag, minute-lag)
	if err != nil {
		return 0, fmt.Errorf("market: prior counts: %w", err)
	}
	prior := e.weighted(cat, chat, react, voice)

	ratio := (recent + 1) / (prior + 1)
	factor := 1 + e.cfg.RelSensitivity*(ratio-1)
	return clamp(factor, e.cfg.RelClampMin, e.cfg.RelClampMax), nil
}

// fracChange turns a base score and relative factor into the bounded
// fractional change applied this minute.
func (e *Engine) fracChange(base, rel float64) float64 {
	raw := (base - 1.0) / e.cfg.VolatilityScale
	chg := raw*rel - e.cfg.Decay
	return clamp(chg, -e.cfg.MaxChange, e.cfg.MaxChange)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
