package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// TradeStore reads the trade journal written by settlements.
type TradeStore struct {
	pool *pgxpool.Pool
}

func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// ListByUser returns the user's most recent trades, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, guildID, userID int64, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guild_id, user_id, symbol, side, quantity, price, notional, order_id, executed_at
		FROM trades
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY executed_at DESC, id DESC
		LIMIT $3`,
		guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.GuildID, &t.UserID, &t.Symbol, &t.Side,
			&t.Quantity, &t.Price, &t.Notional, &t.OrderID, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
