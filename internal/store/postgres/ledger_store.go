package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Accounts are
// created lazily with the configured starting balance.
type LedgerStore struct {
	pool    *pgxpool.Pool
	opening int64
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool, openingBalance int64) *LedgerStore {
	return &LedgerStore{pool: pool, opening: openingBalance}
}

// ensureAccount inserts the account with the opening balance if absent.
func ensureAccount(ctx context.Context, db dbtx, guildID, userID, opening int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO accounts (guild_id, user_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id) DO NOTHING`,
		guildID, userID, opening)
	if err != nil {
		return fmt.Errorf("postgres: ensure account: %w", err)
	}
	return nil
}

// Balance returns the user's balance, creating the account on first read.
func (s *LedgerStore) Balance(ctx context.Context, guildID, userID int64) (int64, error) {
	if err := ensureAccount(ctx, s.pool, guildID, userID, s.opening); err != nil {
		return 0, err
	}
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: read balance: %w", err)
	}
	return balance, nil
}

// Transfer atomically moves amount between two accounts. Both rows change in
// one transaction or neither does.
func (s *LedgerStore) Transfer(ctx context.Context, guildID, from, to, amount int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, domain.ErrInvalidAmount
	}
	if from == to {
		return 0, 0, domain.ErrSelfTransfer
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, guildID, from, s.opening); err != nil {
		return 0, 0, err
	}
	if err := ensureAccount(ctx, tx, guildID, to, s.opening); err != nil {
		return 0, 0, err
	}

	fromBal, err := debit(ctx, tx, guildID, from, amount)
	if err != nil {
		return 0, 0, err
	}
	toBal, err := credit(ctx, tx, guildID, to, amount)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return fromBal, toBal, nil
}

// debit subtracts amount, failing with ErrInsufficientFunds when the balance
// cannot cover it. The account must already exist.
func debit(ctx context.Context, db dbtx, guildID, userID, amount int64) (int64, error) {
	var balance int64
	err := db.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $3, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND balance >= $3
		RETURNING balance`,
		guildID, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: debit: %w", err)
	}
	return balance, nil
}

func credit(ctx context.Context, db dbtx, guildID, userID, amount int64) (int64, error) {
	var balance int64
	err := db.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $3, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2
		RETURNING balance`,
		guildID, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: credit: %w", err)
	}
	return balance, nil
}

// TopBalances returns the guild leaderboard in descending balance order.
func (s *LedgerStore) TopBalances(ctx context.Context, guildID int64, limit int) ([]domain.BalanceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, balance, RANK() OVER (ORDER BY balance DESC) AS rank
		FROM accounts WHERE guild_id = $1
		ORDER BY balance DESC, user_id
		LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top balances: %w", err)
	}
	defer rows.Close()

	var entries []domain.BalanceEntry
	for rows.Next() {
		var e domain.BalanceEntry
		if err := rows.Scan(&e.UserID, &e.Balance, &e.Rank); err != nil {
			return nil, fmt.Errorf("postgres: scan balance entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Rank returns the user's 1-based leaderboard position.
func (s *LedgerStore) Rank(ctx context.Context, guildID, userID int64) (int, error) {
	var rank int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) + 1 FROM accounts a
		WHERE a.guild_id = $1
		  AND a.balance > (SELECT balance FROM accounts WHERE guild_id = $1 AND user_id = $2)`,
		guildID, userID).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: rank: %w", err)
	}
	return rank, nil
}
