package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Matcher evaluates open orders against current prices once per tick.
// Standing orders run every tick regardless of the trading window; their
// whole purpose is to wait for the window or a price level.
type Matcher struct {
	orders domain.OrderStore
	settle domain.SettlementStore
	prices PriceSource
	logger *slog.Logger
}

// NewMatcher builds a Matcher.
func NewMatcher(orders domain.OrderStore, settle domain.SettlementStore, prices PriceSource, logger *slog.Logger) *Matcher {
	return &Matcher{
		orders: orders,
		settle: settle,
		prices: prices,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// MatchGuild evaluates every open order of one guild at the given instant
// and returns how many filled. A failure on one order is logged and never
// stops the rest of the batch.
func (m *Matcher) MatchGuild(ctx context.Context, guildID int64, at time.Time) (int, error) {
	open, err := m.orders.ListOpen(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("service: list open orders: %w", err)
	}

	filled := 0
	for _, order := range open {
		result, err := m.evaluate(ctx, order, at)
		if err != nil {
			m.logger.Error("order evaluation failed",
				slog.Int64("guild", guildID),
				slog.Int64("order", order.ID),
				slog.String("error", err.Error()))
			continue
		}
		if result == domain.MatchFilled {
			filled++
		}
	}
	return filled, nil
}

// evaluate runs the three-way matching rule for one order: Filled when the
// condition is met and settlement succeeds, Pending when the condition is
// unmet or the account cannot yet settle, Rejected only on conditions that
// can never succeed.
func (m *Matcher) evaluate(ctx context.Context, order domain.Order, at time.Time) (domain.MatchResult, error) {
	price, err := m.prices.Price(ctx, order.GuildID, order.Symbol, at)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return domain.MatchRejected, err
		}
		return domain.MatchPending, err
	}
	if !order.Eligible(price) {
		return domain.MatchPending, nil
	}

	trade := domain.Trade{
		GuildID:    order.GuildID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Notional:   domain.Notional(price, order.Quantity),
		OrderID:    &order.ID,
		ExecutedAt: at,
	}
	if _, err := m.settle.Settle(ctx, trade); err != nil {
		// The price condition was met but the account cannot settle. The
		// order stays open and retries on a later tick.
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInsufficientHolding) {
			m.logger.Debug("order pending on settlement",
				slog.Int64("order", order.ID),
				slog.String("reason", err.Error()))
			return domain.MatchPending, nil
		}
		return domain.MatchPending, fmt.Errorf("service: settle order %d: %w", order.ID, err)
	}

	if err := m.orders.MarkFilled(ctx, order.GuildID, order.ID, price, at); err != nil {
		return domain.MatchPending, fmt.Errorf("service: mark filled %d: %w", order.ID, err)
	}
	m.logger.Info("order filled",
		slog.Int64("guild", order.GuildID),
		slog.Int64("order", order.ID),
		slog.Float64("price", price))
	return domain.MatchFilled, nil
}
