// Package service implements the application services of the guild market:
// the currency ledger, inventory, interactive trading, standing-order
// matching, and the auction engine. Services validate and orchestrate; the
// stores own transactional integrity.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Ledger exposes balance queries and the atomic transfer primitive every
// other component settles through.
type Ledger struct {
	store  domain.LedgerStore
	logger *slog.Logger
}

// NewLedger builds a Ledger service.
func NewLedger(store domain.LedgerStore, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger.With(slog.String("component", "ledger"))}
}

// Balance returns the user's balance, creating the account lazily.
func (l *Ledger) Balance(ctx context.Context, guildID, userID int64) (int64, error) {
	bal, err := l.store.Balance(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("service: balance: %w", err)
	}
	return bal, nil
}

// Transfer moves amount from one user to another atomically, returning both
// new balances. Both balances are untouched on any failure.
func (l *Ledger) Transfer(ctx context.Context, guildID, from, to, amount int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, domain.ErrInvalidAmount
	}
	if from == to {
		return 0, 0, domain.ErrSelfTransfer
	}
	fromBal, toBal, err := l.store.Transfer(ctx, guildID, from, to, amount)
	if err != nil {
		return 0, 0, fmt.Errorf("service: transfer: %w", err)
	}
	l.logger.Info("transfer",
		slog.Int64("guild", guildID),
		slog.Int64("from", from),
		slog.Int64("to", to),
		slog.Int64("amount", amount))
	return fromBal, toBal, nil
}

// Top returns the guild's richest accounts in rank order.
func (l *Ledger) Top(ctx context.Context, guildID int64, limit int) ([]domain.BalanceEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.store.TopBalances(ctx, guildID, limit)
}

// Rank returns the user's 1-based position on the guild leaderboard.
func (l *Ledger) Rank(ctx context.Context, guildID, userID int64) (int, error) {
	return l.store.Rank(ctx, guildID, userID)
}
