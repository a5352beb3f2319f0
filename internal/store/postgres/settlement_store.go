package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// SettlementStore executes one trade as a single transaction: the ledger
// movement, the holding change, and the journal row commit together or not
// at all.
type SettlementStore struct {
	pool    *pgxpool.Pool
	opening int64
}

func NewSettlementStore(pool *pgxpool.Pool, openingBalance int64) *SettlementStore {
	return &SettlementStore{pool: pool, opening: openingBalance}
}

// Settle executes the trade. A buy debits the notional and grants the item;
// a sell discards the item and credits the notional. The returned trade
// carries the assigned journal ID.
func (s *SettlementStore) Settle(ctx context.Context, trade domain.Trade) (domain.Trade, error) {
	item, err := trade.Symbol.Item()
	if err != nil {
		return domain.Trade{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, trade.GuildID, trade.UserID, s.opening); err != nil {
		return domain.Trade{}, err
	}

	switch trade.Side {
	case domain.OrderSideBuy:
		if _, err := debit(ctx, tx, trade.GuildID, trade.UserID, trade.Notional); err != nil {
			return domain.Trade{}, err
		}
		if _, err := grantItem(ctx, tx, trade.GuildID, trade.UserID, item, trade.Quantity); err != nil {
			return domain.Trade{}, err
		}
	case domain.OrderSideSell:
		if _, err := discardItem(ctx, tx, trade.GuildID, trade.UserID, item, trade.Quantity); err != nil {
			return domain.Trade{}, err
		}
		if _, err := credit(ctx, tx, trade.GuildID, trade.UserID, trade.Notional); err != nil {
			return domain.Trade{}, err
		}
	default:
		return domain.Trade{}, fmt.Errorf("postgres: unknown trade side %q", trade.Side)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trades (guild_id, user_id, symbol, side, quantity, price, notional, order_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		trade.GuildID, trade.UserID, string(trade.Symbol), string(trade.Side),
		trade.Quantity, trade.Price, trade.Notional, trade.OrderID, trade.ExecutedAt,
	).Scan(&trade.ID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: insert trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: commit settlement: %w", err)
	}
	return trade, nil
}
