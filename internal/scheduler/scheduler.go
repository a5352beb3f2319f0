// Package scheduler runs the periodic loops: the minute tick that advances
// indices and matches orders, the auction finalizer, and the tick archiver.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/counter"
	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/market"
	"github.com/hyeon-dev/guildmarket/internal/service"
)

// tickLockKey is the distributed lock guarding the minute tick so only one
// replica advances the indices.
const tickLockKey = "minute_tick"

// Archiver is the cold-storage mover the daily loop drives.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler coordinates all periodic loops with an errgroup. Any loop
// returning a non-context error cancels the rest.
type Scheduler struct {
	cfg      config.Config
	counters *counter.Store
	engine   *market.Engine
	pricer   *market.Pricer
	alerter  *market.Alerter
	matcher  *service.Matcher
	auctions *service.Auctions
	settings domain.SettingsStore
	locker   domain.Locker
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Scheduler. locker may be nil for single-instance deployments;
// archiver may be nil when archiving is disabled.
func New(cfg config.Config, counters *counter.Store, engine *market.Engine,
	pricer *market.Pricer, alerter *market.Alerter, matcher *service.Matcher,
	auctions *service.Auctions, settings domain.SettingsStore,
	locker domain.Locker, archiver Archiver, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		counters: counters,
		engine:   engine,
		pricer:   pricer,
		alerter:  alerter,
		matcher:  matcher,
		auctions: auctions,
		settings: settings,
		locker:   locker,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
	}
}

// Run starts the loops and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("tick_interval", s.cfg.Market.TickInterval.Duration),
		slog.Duration("finalizer_interval", s.cfg.Auction.FinalizerInterval.Duration))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.runTickLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("tick loop: %w", err)
	})

	g.Go(func() error {
		err := s.runFinalizerLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("auction finalizer: %w", err)
	})

	if s.archiver != nil && s.cfg.Archive.Enabled {
		g.Go(func() error {
			err := s.runArchiveLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

func (s *Scheduler) runTickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Market.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunTick(ctx, s.now())
		}
	}
}

// RunTick executes one minute tick across every known guild. Failures are
// per-guild: one guild's storage trouble never stalls the rest.
func (s *Scheduler) RunTick(ctx context.Context, at time.Time) {
	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, tickLockKey, s.cfg.Market.TickInterval.Duration)
		if errors.Is(err, domain.ErrLockHeld) {
			return // another replica owns this minute
		}
		if err != nil {
			s.logger.Warn("tick lock failed", slog.String("error", err.Error()))
			return
		}
		defer func() {
			if rerr := handle.Release(ctx); rerr != nil {
				s.logger.Warn("tick lock release failed", slog.String("error", rerr.Error()))
			}
		}()
	}

	for _, guildID := range s.guilds(ctx) {
		if err := s.tickGuild(ctx, guildID, at); err != nil {
			s.logger.Error("guild tick failed",
				slog.Int64("guild", guildID),
				slog.String("error", err.Error()))
		}
	}
}

// guilds merges the registered set with any guild the counters have seen, so
// activity arriving before registration still ticks.
func (s *Scheduler) guilds(ctx context.Context) []int64 {
	seen := make(map[int64]struct{})
	var out []int64

	if s.settings != nil {
		registered, err := s.settings.ListGuilds(ctx)
		if err != nil {
			s.logger.Warn("list guilds failed", slog.String("error", err.Error()))
		}
		for _, id := range registered {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	for _, id := range s.counters.Guilds() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (s *Scheduler) tickGuild(ctx context.Context, guildID int64, at time.Time) error {
	// Counters are consumed only inside the trading window; overnight
	// activity keeps accumulating and feeds the first open-window tick.
	if s.engine.Calendar().IsOpen(at) {
		snap := s.counters.SnapshotAndReset(guildID, at)

		outcomes, err := s.engine.Tick(ctx, snap)
		if err != nil {
			return fmt.Errorf("index tick: %w", err)
		}
		for _, out := range outcomes {
			_ = s.alerter.Evaluate(ctx, guildID, out, at)
		}
		if err := s.pricer.RecordQuotes(ctx, guildID, at); err != nil {
			return fmt.Errorf("record quotes: %w", err)
		}
	}

	filled, err := s.matcher.MatchGuild(ctx, guildID, at)
	if err != nil {
		return fmt.Errorf("match orders: %w", err)
	}
	if filled > 0 {
		s.logger.Info("orders matched",
			slog.Int64("guild", guildID),
			slog.Int("filled", filled))
	}
	return nil
}

func (s *Scheduler) runFinalizerLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Auction.FinalizerInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			closed, err := s.auctions.FinalizeDue(ctx, s.cfg.Auction.FinalizerBatch)
			if err != nil {
				s.logger.Error("auction finalize pass failed", slog.String("error", err.Error()))
				continue
			}
			if closed > 0 {
				s.logger.Info("auctions finalized", slog.Int("closed", closed))
			}
		}
	}
}

func (s *Scheduler) runArchiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := s.now().Add(-time.Duration(s.cfg.Archive.RetentionDays) * 24 * time.Hour)
			moved, err := s.archiver.ArchiveBefore(ctx, cutoff)
			if err != nil {
				s.logger.Error("archive pass failed", slog.String("error", err.Error()))
				continue
			}
			if moved > 0 {
				s.logger.Info("ticks archived", slog.Int64("rows", moved))
			}
		}
	}
}
