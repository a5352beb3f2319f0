package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Auctions runs the escrow-based ascending-price auction engine.
type Auctions struct {
	store  domain.AuctionStore
	roster domain.GuildRoster
	cfg    config.AuctionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAuctions builds an Auctions service. roster may be nil; the abandoned-
// auction policy is then skipped.
func NewAuctions(store domain.AuctionStore, roster domain.GuildRoster, cfg config.AuctionConfig, logger *slog.Logger) *Auctions {
	return &Auctions{
		store:  store,
		roster: roster,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "auctions")),
		now:    time.Now,
	}
}

// List creates an auction and escrows the listed quantity out of the
// seller's holding in the same transaction.
func (a *Auctions) List(ctx context.Context, guildID, sellerID int64, item domain.ItemKey, qty, startPrice int64, duration time.Duration) (domain.Auction, error) {
	if qty <= 0 {
		return domain.Auction{}, domain.ErrInvalidQuantity
	}
	if startPrice <= 0 {
		return domain.Auction{}, domain.ErrInvalidPrice
	}
	if duration < a.cfg.MinDuration.Duration || duration > a.cfg.MaxDuration.Duration {
		return domain.Auction{}, fmt.Errorf("service: auction duration %s outside [%s, %s]: %w",
			duration, a.cfg.MinDuration.Duration, a.cfg.MaxDuration.Duration, domain.ErrInvalidAmount)
	}

	at := a.now()
	auction := domain.Auction{
		GuildID:    guildID,
		SellerID:   sellerID,
		Item:       item,
		Quantity:   qty,
		StartPrice: startPrice,
		State:      domain.AuctionOpen{},
		CreatedAt:  at,
		ExpiresAt:  at.Add(duration),
	}
	created, err := a.store.Create(ctx, auction)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("service: list auction: %w", err)
	}
	a.logger.Info("auction listed",
		slog.Int64("guild", guildID),
		slog.Int64("auction", created.ID),
		slog.Int64("seller", sellerID),
		slog.String("item", item.Name))
	return created, nil
}

// Bid places a strictly-increasing bid. The bidder's funds are escrowed and
// the previous bidder, if any, is refunded in the same transaction.
func (a *Auctions) Bid(ctx context.Context, guildID, auctionID, bidderID, amount int64) (domain.Auction, error) {
	if amount <= 0 {
		return domain.Auction{}, domain.ErrInvalidAmount
	}
	auction, err := a.store.GetByID(ctx, guildID, auctionID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("service: bid lookup: %w", err)
	}
	if !auction.IsOpen() || a.now().After(auction.ExpiresAt) {
		return domain.Auction{}, domain.ErrAuctionClosed
	}
	if auction.SellerID == bidderID {
		return domain.Auction{}, domain.ErrSelfBid
	}
	if amount <= auction.MinNextBid() {
		return domain.Auction{}, domain.ErrBidTooLow
	}

	// The store re-validates inside its transaction; this pre-check only
	// gives callers a clean error without burning a transaction.
	updated, err := a.store.PlaceBid(ctx, guildID, auctionID, bidderID, amount)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("service: place bid: %w", err)
	}
	a.logger.Info("bid placed",
		slog.Int64("guild", guildID),
		slog.Int64("auction", auctionID),
		slog.Int64("bidder", bidderID),
		slog.Int64("amount", amount))
	return updated, nil
}

// Get returns one auction.
func (a *Auctions) Get(ctx context.Context, guildID, auctionID int64) (domain.Auction, error) {
	return a.store.GetByID(ctx, guildID, auctionID)
}

// Browse lists open auctions, optionally filtered by an item-name query.
func (a *Auctions) Browse(ctx context.Context, guildID int64, query string, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 20
	}
	return a.store.ListOpen(ctx, guildID, query, limit)
}

// CountOpen returns the number of open auctions in the guild.
func (a *Auctions) CountOpen(ctx context.Context, guildID int64) (int64, error) {
	return a.store.CountOpen(ctx, guildID)
}

// Bids returns the bid history of one auction, oldest first.
func (a *Auctions) Bids(ctx context.Context, auctionID int64) ([]domain.Bid, error) {
	return a.store.Bids(ctx, auctionID)
}

// FinalizeDue settles every expired auction, at most batch at a time, and
// returns how many closed. Abandoned auctions (seller gone, no bids) are
// discarded instead of returned. A failure on one auction is logged and
// never stops the rest of the batch.
func (a *Auctions) FinalizeDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = a.cfg.FinalizerBatch
	}
	at := a.now()
	due, err := a.store.ListExpired(ctx, at, batch)
	if err != nil {
		return 0, fmt.Errorf("service: list expired auctions: %w", err)
	}

	closed := 0
	for _, auction := range due {
		if err := a.finalizeOne(ctx, auction, at); err != nil {
			a.logger.Error("auction finalize failed",
				slog.Int64("auction", auction.ID),
				slog.String("error", err.Error()))
			continue
		}
		closed++
	}
	return closed, nil
}

func (a *Auctions) finalizeOne(ctx context.Context, auction domain.Auction, at time.Time) error {
	if auction.BidderID == nil && a.roster != nil {
		member, err := a.roster.IsMember(ctx, auction.GuildID, auction.SellerID)
		if err == nil && !member {
			a.logger.Info("discarding abandoned auction",
				slog.Int64("auction", auction.ID),
				slog.Int64("seller", auction.SellerID))
			return a.store.Discard(ctx, auction.ID)
		}
		// A roster error falls through to a normal finalize; returning the
		// item to a possibly-absent seller is the safe direction.
	}

	final, err := a.store.Finalize(ctx, auction.ID, at)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionClosed) {
			return nil // another finalizer got there first
		}
		return err
	}
	switch st := final.State.(type) {
	case domain.AuctionClosedSold:
		a.logger.Info("auction settled",
			slog.Int64("auction", final.ID),
			slog.Int64("winner", st.WinnerID),
			slog.Int64("price", st.Price))
	case domain.AuctionClosedUnsold:
		a.logger.Info("auction closed unsold", slog.Int64("auction", final.ID))
	}
	return nil
}
