package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Notifier delivers one alert to a guild's configured channels. Delivery is
// best-effort; the alerter never propagates a send failure.
type Notifier interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// Alerter evaluates alert conditions on every tick outcome and dispatches
// them with a per-(guild, category, event) cooldown. Alerts never affect the
// tick or settlement; every failure here is logged and dropped.
type Alerter struct {
	cfg       alertConfig
	limiter   domain.RateLimiter
	settings  domain.SettingsStore
	notifier  Notifier
	bus       domain.SignalBus
	logger    *slog.Logger
	startedAt time.Time
}

type alertConfig struct {
	SpikeThreshold float64
	NewHighStep    float64
	Cooldown       time.Duration
	Warmup         time.Duration
}

// NewAlerter builds an Alerter. limiter, notifier, and bus may each be nil;
// a nil limiter disables cooldowns and a nil notifier disables delivery.
func NewAlerter(spikeThreshold, newHighStep float64, cooldown, warmup time.Duration,
	limiter domain.RateLimiter, settings domain.SettingsStore, notifier Notifier,
	bus domain.SignalBus, logger *slog.Logger) *Alerter {
	return &Alerter{
		cfg: alertConfig{
			SpikeThreshold: spikeThreshold,
			NewHighStep:    newHighStep,
			Cooldown:       cooldown,
			Warmup:         warmup,
		},
		limiter:   limiter,
		settings:  settings,
		notifier:  notifier,
		bus:       bus,
		logger:    logger.With(slog.String("component", "alerter")),
		startedAt: time.Now(),
	}
}

// Evaluate inspects one tick outcome and sends any triggered alerts. It
// always returns nil; best-effort by policy.
func (a *Alerter) Evaluate(ctx context.Context, guildID int64, out TickOutcome, at time.Time) error {
	if at.Sub(a.startedAt) < a.cfg.Warmup {
		return nil
	}
	settings, err := a.settings.Get(ctx, guildID)
	if err != nil {
		a.logger.Warn("settings lookup failed", slog.Int64("guild", guildID), slog.String("error", err.Error()))
		return nil
	}
	if !settings.AlertsEnabled {
		return nil
	}

	cat := out.Index.Category

	// Spikes are judged on the realized move, not the raw applied change: a
	// tick pinned at the band moved less than the update rule asked for.
	realized := 0.0
	if out.Old > 0 {
		realized = (out.Index.Current - out.Old) / out.Old
	}
	pct := realized * 100

	alert := domain.Alert{
		GuildID:   guildID,
		Category:  cat,
		Value:     out.Index.Current,
		Open:      out.Index.Open,
		ChangePct: pct,
		At:        at,
	}

	switch {
	case realized >= a.cfg.SpikeThreshold:
		alert.Event = domain.EventSpikeUp
		alert.Title = fmt.Sprintf("%s index spike", cat)
		alert.Message = fmt.Sprintf("%s index spiked %+.2f%% to %.2f", cat, pct, out.Index.Current)
		a.fire(ctx, alert, a.cfg.Cooldown)
	case realized <= -a.cfg.SpikeThreshold:
		alert.Event = domain.EventSpikeDown
		alert.Title = fmt.Sprintf("%s index drop", cat)
		alert.Message = fmt.Sprintf("%s index dropped %+.2f%% to %.2f", cat, pct, out.Index.Current)
		a.fire(ctx, alert, a.cfg.Cooldown)
	}

	// New-high alerts fire on a shorter cooldown and only once the high has
	// moved a meaningful step past the previous one.
	if out.NewHigh && out.PrevHigh > 0 &&
		(out.Index.High-out.PrevHigh)/out.PrevHigh > a.cfg.NewHighStep {
		alert.Event = domain.EventNewHigh
		alert.Title = fmt.Sprintf("%s index high", cat)
		alert.Message = fmt.Sprintf("%s index set a new daily high of %.2f", cat, out.Index.High)
		a.fire(ctx, alert, a.cfg.Cooldown/2)
	}
	return nil
}

func (a *Alerter) fire(ctx context.Context, alert domain.Alert, cooldown time.Duration) {
	if a.limiter != nil {
		key := fmt.Sprintf("alert:%d:%s:%s", alert.GuildID, alert.Category, alert.Event)
		ok, err := a.limiter.Allow(ctx, key, 1, cooldown)
		if err != nil {
			a.logger.Warn("alert limiter failed", slog.String("key", key), slog.String("error", err.Error()))
			return
		}
		if !ok {
			return
		}
	}
	if a.bus != nil {
		payload := map[string]any{
			"guild":    alert.GuildID,
			"category": string(alert.Category),
			"event":    alert.Event,
			"message":  alert.Message,
		}
		if err := a.bus.Publish(ctx, "guildmarket:alerts", payload); err != nil {
			a.logger.Warn("alert publish failed", slog.String("error", err.Error()))
		}
	}
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Send(ctx, alert); err != nil {
		a.logger.Warn("alert delivery failed",
			slog.Int64("guild", alert.GuildID),
			slog.String("event", alert.Event),
			slog.String("error", err.Error()))
	}
}
