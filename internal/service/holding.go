package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Holdings exposes the inventory: listing, search, grants, discards, and
// item transfers between users.
type Holdings struct {
	store  domain.HoldingStore
	logger *slog.Logger
}

// NewHoldings builds a Holdings service.
func NewHoldings(store domain.HoldingStore, logger *slog.Logger) *Holdings {
	return &Holdings{store: store, logger: logger.With(slog.String("component", "holdings"))}
}

// List returns every item the user owns.
func (h *Holdings) List(ctx context.Context, guildID, userID int64) ([]domain.Holding, error) {
	return h.store.List(ctx, guildID, userID)
}

// Search returns the user's items whose name or emoji matches query.
func (h *Holdings) Search(ctx context.Context, guildID, userID int64, query string) ([]domain.Holding, error) {
	return h.store.Search(ctx, guildID, userID, query)
}

// Quantity returns how many of one item the user owns; zero when absent.
func (h *Holdings) Quantity(ctx context.Context, guildID, userID int64, item domain.ItemKey) (int64, error) {
	return h.store.Get(ctx, guildID, userID, item)
}

// Grant adds qty of item to the user's inventory and returns the new total.
func (h *Holdings) Grant(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	n, err := h.store.Grant(ctx, guildID, userID, item, qty)
	if err != nil {
		return 0, fmt.Errorf("service: grant: %w", err)
	}
	return n, nil
}

// Discard removes qty of item from the user's inventory and returns the
// remainder. Fails without side effects when the user owns fewer than qty.
func (h *Holdings) Discard(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	n, err := h.store.Discard(ctx, guildID, userID, item, qty)
	if err != nil {
		return 0, fmt.Errorf("service: discard: %w", err)
	}
	return n, nil
}

// Transfer moves qty of item between two users atomically.
func (h *Holdings) Transfer(ctx context.Context, guildID, from, to int64, item domain.ItemKey, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if from == to {
		return domain.ErrSelfTransfer
	}
	if err := h.store.TransferItem(ctx, guildID, from, to, item, qty); err != nil {
		return fmt.Errorf("service: item transfer: %w", err)
	}
	h.logger.Info("item transfer",
		slog.Int64("guild", guildID),
		slog.Int64("from", from),
		slog.Int64("to", to),
		slog.String("item", item.Name),
		slog.Int64("qty", qty))
	return nil
}
