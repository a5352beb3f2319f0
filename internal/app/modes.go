package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyeon-dev/guildmarket/internal/feed"
	"github.com/hyeon-dev/guildmarket/internal/market"
	"github.com/hyeon-dev/guildmarket/internal/scheduler"
	"github.com/hyeon-dev/guildmarket/internal/server"
	"github.com/hyeon-dev/guildmarket/internal/server/handler"
	"github.com/hyeon-dev/guildmarket/internal/service"
)

// FullMode runs the event gateway, the tick scheduler, and the HTTP API in
// one process. This is the default single-instance deployment.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	core, err := a.buildCore(deps)
	if err != nil {
		return err
	}
	sched := a.buildScheduler(deps, core)
	gateway := feed.NewGateway(a.cfg.Feed, deps.Counters, deps.Roster, deps.Settings, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.Run(ctx)
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	a.runServer(ctx, g, deps, core)
	return g.Wait()
}

// SchedulerMode runs the periodic loops plus the HTTP API. Activity must
// arrive through a separate feed-mode process; with none attached, registered
// guilds still tick on empty snapshots.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scheduler mode")

	core, err := a.buildCore(deps)
	if err != nil {
		return err
	}
	sched := a.buildScheduler(deps, core)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	a.runServer(ctx, g, deps, core)
	return g.Wait()
}

// FeedMode runs only the event gateway, recording activity counters and the
// member roster without advancing any indices.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	gateway := feed.NewGateway(a.cfg.Feed, deps.Counters, deps.Roster, deps.Settings, a.logger)
	return gateway.Run(ctx)
}

// core is the market machinery shared by the scheduler and the HTTP API.
type core struct {
	cal      *market.Calendar
	engine   *market.Engine
	pricer   *market.Pricer
	alerter  *market.Alerter
	matcher  *service.Matcher
	auctions *service.Auctions
}

func (a *App) buildCore(deps *Dependencies) (*core, error) {
	cal, err := market.NewCalendar(a.cfg.Market.Timezone, a.cfg.Market.OpenTime, a.cfg.Market.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("app: calendar: %w", err)
	}

	engine := market.NewEngine(a.cfg.Market, deps.Indices, cal, a.logger)
	pricer := market.NewPricer(engine, deps.Quotes, deps.QuoteCache, a.logger)
	alerter := market.NewAlerter(
		a.cfg.Market.SpikeThreshold,
		a.cfg.Market.NewHighStep,
		a.cfg.Market.AlertCooldown.Duration,
		a.cfg.Market.AlertWarmup.Duration,
		deps.RateLimiter,
		deps.Settings,
		deps.Notifier,
		deps.SignalBus,
		a.logger,
	)
	matcher := service.NewMatcher(deps.Orders, deps.Settlement, pricer, a.logger)
	auctions := service.NewAuctions(deps.Auctions, deps.Roster, a.cfg.Auction, a.logger)

	return &core{
		cal:      cal,
		engine:   engine,
		pricer:   pricer,
		alerter:  alerter,
		matcher:  matcher,
		auctions: auctions,
	}, nil
}

// buildScheduler assembles the tick scheduler from wired dependencies.
func (a *App) buildScheduler(deps *Dependencies, c *core) *scheduler.Scheduler {
	// An interface holding a nil *Archiver would still compare non-nil, so
	// only assign when one was wired.
	var archiver scheduler.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	return scheduler.New(*a.cfg, deps.Counters, c.engine, c.pricer, c.alerter, c.matcher,
		c.auctions, deps.Settings, deps.Locker, archiver, a.logger)
}

// buildServer assembles the HTTP API over the interactive services.
func (a *App) buildServer(deps *Dependencies, c *core) *server.Server {
	ledger := service.NewLedger(deps.Ledger, a.logger)
	holdings := service.NewHoldings(deps.Holdings, a.logger)
	exchange := service.NewExchange(c.pricer, deps.Settlement, deps.Orders, deps.Trades, c.cal, a.logger)

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(),
		Ledger:   handler.NewLedgerHandler(ledger, a.logger),
		Holdings: handler.NewHoldingHandler(holdings, a.logger),
		Exchange: handler.NewExchangeHandler(exchange, c.pricer, a.logger),
		Auctions: handler.NewAuctionHandler(c.auctions, a.logger),
	}
	return server.New(server.Config{
		Port:        a.cfg.Server.Port,
		APIKey:      a.cfg.Server.APIKey,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, a.logger)
}

// runServer starts the HTTP API inside the errgroup when it is enabled, plus
// a companion goroutine that drains it on context cancellation.
func (a *App) runServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		return
	}
	srv := a.buildServer(deps, c)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
