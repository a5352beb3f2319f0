package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/market"
)

// PriceSource answers authoritative current-price queries. Satisfied by
// market.Pricer.
type PriceSource interface {
	Price(ctx context.Context, guildID int64, sym domain.Symbol, at time.Time) (float64, error)
}

// ExecOutcome is the result of submitting an interactive trade: either it
// settled immediately, or the market was closed and it was queued as a
// market-at-open order.
type ExecOutcome struct {
	Trade *domain.Trade
	Order *domain.Order
}

// Exchange handles interactive buys and sells and the standing-order
// lifecycle (placement, listing, cancellation).
type Exchange struct {
	prices PriceSource
	settle domain.SettlementStore
	orders domain.OrderStore
	trades domain.TradeStore
	cal    *market.Calendar
	logger *slog.Logger
	now    func() time.Time
}

// NewExchange builds an Exchange service.
func NewExchange(prices PriceSource, settle domain.SettlementStore, orders domain.OrderStore,
	trades domain.TradeStore, cal *market.Calendar, logger *slog.Logger) *Exchange {
	return &Exchange{
		prices: prices,
		settle: settle,
		orders: orders,
		trades: trades,
		cal:    cal,
		logger: logger.With(slog.String("component", "exchange")),
		now:    time.Now,
	}
}

// Buy settles an immediate purchase at the current price. Fails with
// ErrMarketClosed outside the trading window.
func (e *Exchange) Buy(ctx context.Context, guildID, userID int64, rawSym string, qty int64) (domain.Trade, error) {
	return e.tradeNow(ctx, guildID, userID, rawSym, domain.OrderSideBuy, qty)
}

// Sell settles an immediate sale at the current price. Fails with
// ErrMarketClosed outside the trading window.
func (e *Exchange) Sell(ctx context.Context, guildID, userID int64, rawSym string, qty int64) (domain.Trade, error) {
	return e.tradeNow(ctx, guildID, userID, rawSym, domain.OrderSideSell, qty)
}

func (e *Exchange) tradeNow(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64) (domain.Trade, error) {
	if qty <= 0 {
		return domain.Trade{}, domain.ErrInvalidQuantity
	}
	sym, err := domain.NormalizeSymbol(rawSym)
	if err != nil {
		return domain.Trade{}, err
	}
	at := e.now()
	if !e.cal.IsOpen(at) {
		return domain.Trade{}, domain.ErrMarketClosed
	}

	price, err := e.prices.Price(ctx, guildID, sym, at)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("service: price: %w", err)
	}
	trade := domain.Trade{
		GuildID:    guildID,
		UserID:     userID,
		Symbol:     sym,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Notional:   domain.Notional(price, qty),
		ExecutedAt: at,
	}
	settled, err := e.settle.Settle(ctx, trade)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("service: settle %s: %w", side, err)
	}
	e.logger.Info("trade settled",
		slog.Int64("guild", guildID),
		slog.Int64("user", userID),
		slog.String("symbol", string(sym)),
		slog.String("side", string(side)),
		slog.Int64("qty", qty),
		slog.Float64("price", price))
	return settled, nil
}

// Submit attempts an immediate trade and, when the market is closed, queues
// a market-at-open order instead of failing.
func (e *Exchange) Submit(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64) (ExecOutcome, error) {
	trade, err := e.tradeNow(ctx, guildID, userID, rawSym, side, qty)
	if err == nil {
		return ExecOutcome{Trade: &trade}, nil
	}
	if !errors.Is(err, domain.ErrMarketClosed) {
		return ExecOutcome{}, err
	}
	order, err := e.PlaceMarketOrder(ctx, guildID, userID, rawSym, side, qty)
	if err != nil {
		return ExecOutcome{}, err
	}
	return ExecOutcome{Order: &order}, nil
}

// PlaceMarketOrder queues a market-at-open order that the matching loop
// executes on its next run.
func (e *Exchange) PlaceMarketOrder(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64) (domain.Order, error) {
	return e.place(ctx, guildID, userID, rawSym, side, domain.OrderTypeMarketOpen, qty, 0)
}

// PlaceLimitOrder queues a limit order: buys fill once the price is at or
// below limit, sells once at or above.
func (e *Exchange) PlaceLimitOrder(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64, limit float64) (domain.Order, error) {
	if limit <= 0 {
		return domain.Order{}, domain.ErrInvalidPrice
	}
	return e.place(ctx, guildID, userID, rawSym, side, domain.OrderTypeLimit, qty, limit)
}

func (e *Exchange) place(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, typ domain.OrderType, qty int64, limit float64) (domain.Order, error) {
	if qty <= 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	sym, err := domain.NormalizeSymbol(rawSym)
	if err != nil {
		return domain.Order{}, err
	}
	order := domain.Order{
		GuildID:    guildID,
		UserID:     userID,
		Symbol:     sym,
		Side:       side,
		Type:       typ,
		Quantity:   qty,
		LimitPrice: limit,
		State:      domain.OrderOpen{},
		CreatedAt:  e.now(),
	}
	created, err := e.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: place order: %w", err)
	}
	e.logger.Info("order placed",
		slog.Int64("guild", guildID),
		slog.Int64("user", userID),
		slog.Int64("order", created.ID),
		slog.String("type", string(typ)),
		slog.String("side", string(side)))
	return created, nil
}

// OpenOrders lists the user's open orders.
func (e *Exchange) OpenOrders(ctx context.Context, guildID, userID int64) ([]domain.Order, error) {
	return e.orders.ListOpenByUser(ctx, guildID, userID)
}

// Cancel cancels one of the user's open orders. Terminal orders fail with
// ErrOrderNotOpen.
func (e *Exchange) Cancel(ctx context.Context, guildID, orderID, userID int64) error {
	if err := e.orders.Cancel(ctx, guildID, orderID, userID, e.now()); err != nil {
		return fmt.Errorf("service: cancel order: %w", err)
	}
	return nil
}

// History lists the user's recent trades, newest first.
func (e *Exchange) History(ctx context.Context, guildID, userID int64, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.trades.ListByUser(ctx, guildID, userID, limit)
}
