package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// OrderStore persists standing orders. The lifecycle lives in a status column
// plus the nullable fill/cancel columns; rows map back to the tagged state on
// read.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (guild_id, user_id, symbol, side, order_type, quantity, limit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		order.GuildID, order.UserID, string(order.Symbol), string(order.Side),
		string(order.Type), order.Quantity, order.LimitPrice,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: create order: %w", err)
	}
	order.State = domain.OrderOpen{}
	return order, nil
}

const orderColumns = `id, guild_id, user_id, symbol, side, order_type, quantity,
	limit_price, status, fill_price, filled_at, cancelled_at, created_at`

func (s *OrderStore) GetByID(ctx context.Context, guildID, id int64) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE guild_id = $1 AND id = $2`,
		guildID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, err
}

func (s *OrderStore) ListOpen(ctx context.Context, guildID int64) ([]domain.Order, error) {
	return s.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE guild_id = $1 AND status = 'open' ORDER BY id`,
		guildID)
}

func (s *OrderStore) ListOpenByUser(ctx context.Context, guildID, userID int64) ([]domain.Order, error) {
	return s.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE guild_id = $1 AND user_id = $2 AND status = 'open' ORDER BY id`,
		guildID, userID)
}

func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// MarkFilled transitions open → filled. The conditional update makes the
// transition race-safe; a row in any other state fails with ErrOrderNotOpen.
func (s *OrderStore) MarkFilled(ctx context.Context, guildID, id int64, price float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'filled', fill_price = $3, filled_at = $4
		WHERE guild_id = $1 AND id = $2 AND status = 'open'`,
		guildID, id, price, at)
	if err != nil {
		return fmt.Errorf("postgres: mark filled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notOpenReason(ctx, guildID, id)
	}
	return nil
}

// Cancel transitions open → cancelled for the order's owner.
func (s *OrderStore) Cancel(ctx context.Context, guildID, id, userID int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'cancelled', cancelled_at = $4
		WHERE guild_id = $1 AND id = $2 AND user_id = $3 AND status = 'open'`,
		guildID, id, userID, at)
	if err != nil {
		return fmt.Errorf("postgres: cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing or foreign order from one already terminal.
		var owner int64
		err := s.pool.QueryRow(ctx,
			`SELECT user_id FROM orders WHERE guild_id = $1 AND id = $2`,
			guildID, id).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != userID) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: cancel order: %w", err)
		}
		return domain.ErrOrderNotOpen
	}
	return nil
}

func (s *OrderStore) notOpenReason(ctx context.Context, guildID, id int64) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM orders WHERE guild_id = $1 AND id = $2`,
		guildID, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: read order status: %w", err)
	}
	return domain.ErrOrderNotOpen
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		fillPrice   sql.NullFloat64
		filledAt    sql.NullTime
		cancelledAt sql.NullTime
	)
	err := row.Scan(&order.ID, &order.GuildID, &order.UserID, &order.Symbol,
		&order.Side, &order.Type, &order.Quantity, &order.LimitPrice,
		&status, &fillPrice, &filledAt, &cancelledAt, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, err
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: scan order: %w", err)
	}

	switch status {
	case "filled":
		order.State = domain.OrderFilled{Price: fillPrice.Float64, FilledAt: filledAt.Time}
	case "cancelled":
		order.State = domain.OrderCancelled{CancelledAt: cancelledAt.Time}
	default:
		order.State = domain.OrderOpen{}
	}
	return order, nil
}
