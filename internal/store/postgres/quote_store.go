package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// QuoteStore persists per-minute instrument price observations.
type QuoteStore struct {
	pool *pgxpool.Pool
}

func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

func (s *QuoteStore) Insert(ctx context.Context, tick domain.QuoteTick) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quote_ticks (guild_id, symbol, minute, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, symbol, minute) DO NOTHING`,
		tick.GuildID, string(tick.Symbol), tick.Minute, tick.Price)
	if err != nil {
		return fmt.Errorf("postgres: insert quote: %w", err)
	}
	return nil
}

func (s *QuoteStore) Since(ctx context.Context, guildID int64, sym domain.Symbol, sinceMinute int64) ([]domain.QuoteTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guild_id, symbol, minute, price FROM quote_ticks
		WHERE guild_id = $1 AND symbol = $2 AND minute >= $3
		ORDER BY minute`,
		guildID, string(sym), sinceMinute)
	if err != nil {
		return nil, fmt.Errorf("postgres: quotes since: %w", err)
	}
	return scanQuotes(rows)
}

func (s *QuoteStore) Before(ctx context.Context, cutoffMinute int64, limit int) ([]domain.QuoteTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guild_id, symbol, minute, price FROM quote_ticks
		WHERE minute < $1
		ORDER BY minute
		LIMIT $2`,
		cutoffMinute, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: quotes before: %w", err)
	}
	return scanQuotes(rows)
}

func (s *QuoteStore) DeleteBefore(ctx context.Context, cutoffMinute int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM quote_ticks WHERE minute < $1`, cutoffMinute)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quotes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanQuotes(rows pgx.Rows) ([]domain.QuoteTick, error) {
	defer rows.Close()
	var quotes []domain.QuoteTick
	for rows.Next() {
		var q domain.QuoteTick
		if err := rows.Scan(&q.GuildID, &q.Symbol, &q.Minute, &q.Price); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
