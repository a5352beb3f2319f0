package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// HoldingStore implements domain.HoldingStore. Zero quantities are never
// stored; decrementing to zero deletes the row.
type HoldingStore struct {
	pool *pgxpool.Pool
}

func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Get returns the held quantity, zero when no row exists.
func (s *HoldingStore) Get(ctx context.Context, guildID, userID int64, item domain.ItemKey) (int64, error) {
	var qty int64
	err := s.pool.QueryRow(ctx, `
		SELECT quantity FROM holdings
		WHERE guild_id = $1 AND user_id = $2 AND item_emoji = $3 AND item_name = $4`,
		guildID, userID, item.Emoji, item.Name).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: read holding: %w", err)
	}
	return qty, nil
}

// Grant adds qty of the item and returns the new quantity.
func (s *HoldingStore) Grant(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	return grantItem(ctx, s.pool, guildID, userID, item, qty)
}

func grantItem(ctx context.Context, db dbtx, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	var total int64
	err := db.QueryRow(ctx, `
		INSERT INTO holdings (guild_id, user_id, item_emoji, item_name, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id, user_id, item_emoji, item_name)
		DO UPDATE SET quantity = holdings.quantity + EXCLUDED.quantity
		RETURNING quantity`,
		guildID, userID, item.Emoji, item.Name, qty).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: grant item: %w", err)
	}
	return total, nil
}

// Discard removes qty of the item, deleting the row when it reaches zero.
// Returns the remaining quantity.
func (s *HoldingStore) Discard(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin discard: %w", err)
	}
	defer tx.Rollback(ctx)

	remaining, err := discardItem(ctx, tx, guildID, userID, item, qty)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit discard: %w", err)
	}
	return remaining, nil
}

func discardItem(ctx context.Context, db dbtx, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	var remaining int64
	err := db.QueryRow(ctx, `
		UPDATE holdings SET quantity = quantity - $5
		WHERE guild_id = $1 AND user_id = $2 AND item_emoji = $3 AND item_name = $4
		  AND quantity >= $5
		RETURNING quantity`,
		guildID, userID, item.Emoji, item.Name, qty).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientHolding
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: discard item: %w", err)
	}
	if remaining == 0 {
		_, err = db.Exec(ctx, `
			DELETE FROM holdings
			WHERE guild_id = $1 AND user_id = $2 AND item_emoji = $3 AND item_name = $4
			  AND quantity = 0`,
			guildID, userID, item.Emoji, item.Name)
		if err != nil {
			return 0, fmt.Errorf("postgres: prune empty holding: %w", err)
		}
	}
	return remaining, nil
}

// List returns the user's full inventory, largest stacks first.
func (s *HoldingStore) List(ctx context.Context, guildID, userID int64) ([]domain.Holding, error) {
	return s.query(ctx, `
		SELECT guild_id, user_id, item_emoji, item_name, quantity FROM holdings
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY quantity DESC, item_name`,
		guildID, userID)
}

// Search returns inventory rows whose name contains query, case-insensitive.
func (s *HoldingStore) Search(ctx context.Context, guildID, userID int64, query string) ([]domain.Holding, error) {
	return s.query(ctx, `
		SELECT guild_id, user_id, item_emoji, item_name, quantity FROM holdings
		WHERE guild_id = $1 AND user_id = $2 AND item_name ILIKE '%' || $3 || '%'
		ORDER BY quantity DESC, item_name`,
		guildID, userID, query)
}

func (s *HoldingStore) query(ctx context.Context, sql string, args ...any) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.GuildID, &h.UserID, &h.Item.Emoji, &h.Item.Name, &h.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// TransferItem atomically moves qty of item between two users.
func (s *HoldingStore) TransferItem(ctx context.Context, guildID, from, to int64, item domain.ItemKey, qty int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin item transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := discardItem(ctx, tx, guildID, from, item, qty); err != nil {
		return err
	}
	if _, err := grantItem(ctx, tx, guildID, to, item, qty); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit item transfer: %w", err)
	}
	return nil
}
