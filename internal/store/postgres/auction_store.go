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

// AuctionStore persists auctions and runs their multi-row transitions inside
// transactions. Escrow invariant: while an auction is open, the listed items
// sit in no holding row and the best bid sits in no account row.
type AuctionStore struct {
	pool    *pgxpool.Pool
	opening int64
}

func NewAuctionStore(pool *pgxpool.Pool, openingBalance int64) *AuctionStore {
	return &AuctionStore{pool: pool, opening: openingBalance}
}

// Create inserts the auction and escrows the listed quantity out of the
// seller's holding in one transaction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) (domain.Auction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: begin auction create: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := discardItem(ctx, tx, a.GuildID, a.SellerID, a.Item, a.Quantity); err != nil {
		return domain.Auction{}, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO auctions (guild_id, seller_id, item_emoji, item_name, quantity, start_price, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.GuildID, a.SellerID, a.Item.Emoji, a.Item.Name,
		a.Quantity, a.StartPrice, a.CreatedAt, a.ExpiresAt,
	).Scan(&a.ID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: insert auction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: commit auction create: %w", err)
	}
	a.State = domain.AuctionOpen{}
	return a, nil
}

const auctionColumns = `id, guild_id, seller_id, item_emoji, item_name, quantity,
	start_price, bid_price, bidder_id, status, winner_id, win_price, created_at, expires_at`

func (s *AuctionStore) GetByID(ctx context.Context, guildID, id int64) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE guild_id = $1 AND id = $2`,
		guildID, id)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, err
}

// ListOpen returns open auctions, optionally filtered by an item-name query,
// soonest to expire first.
func (s *AuctionStore) ListOpen(ctx context.Context, guildID int64, query string, limit int) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE guild_id = $1 AND status = 'open'
		  AND ($2 = '' OR item_name ILIKE '%' || $2 || '%')
		ORDER BY expires_at
		LIMIT $3`,
		guildID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

func (s *AuctionStore) CountOpen(ctx context.Context, guildID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE guild_id = $1 AND status = 'open'`,
		guildID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count auctions: %w", err)
	}
	return n, nil
}

// Bids returns the bid history, oldest first.
func (s *AuctionStore) Bids(ctx context.Context, auctionID int64) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, placed_at FROM auction_bids
		WHERE auction_id = $1
		ORDER BY id`,
		auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// PlaceBid escrows the new bidder's funds, refunds the previous bidder, and
// records the bid in one transaction. The row lock re-validates the bid rules
// against the current state, so two racing bids serialize cleanly.
func (s *AuctionStore) PlaceBid(ctx context.Context, guildID, auctionID, bidderID, amount int64) (domain.Auction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: begin bid: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE guild_id = $1 AND id = $2 FOR UPDATE`,
		guildID, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, err
	}

	if !a.IsOpen() {
		return domain.Auction{}, domain.ErrAuctionClosed
	}
	if a.SellerID == bidderID {
		return domain.Auction{}, domain.ErrSelfBid
	}
	if amount <= a.MinNextBid() {
		return domain.Auction{}, domain.ErrBidTooLow
	}

	if err := ensureAccount(ctx, tx, guildID, bidderID, s.opening); err != nil {
		return domain.Auction{}, err
	}
	if _, err := debit(ctx, tx, guildID, bidderID, amount); err != nil {
		return domain.Auction{}, err
	}
	if a.BidderID != nil {
		if _, err := credit(ctx, tx, guildID, *a.BidderID, *a.BidPrice); err != nil {
			return domain.Auction{}, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE auctions SET bid_price = $2, bidder_id = $3 WHERE id = $1`,
		auctionID, amount, bidderID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: update best bid: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO auction_bids (auction_id, bidder_id, amount) VALUES ($1, $2, $3)`,
		auctionID, bidderID, amount)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: record bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: commit bid: %w", err)
	}
	a.BidPrice = &amount
	a.BidderID = &bidderID
	return a, nil
}

// ListExpired returns open auctions past their expiry, oldest first.
func (s *AuctionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE status = 'open' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Finalize settles one expired auction exactly once. The status re-check
// under the row lock makes a second call fail with ErrAuctionClosed instead
// of settling twice. With a bid, the item goes to the best bidder and the
// escrowed funds go to the seller; a patent item also moves its patent record
// to the winner. Without a bid, the item returns to the seller.
func (s *AuctionStore) Finalize(ctx context.Context, auctionID int64, now time.Time) (domain.Auction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`,
		auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, err
	}
	if !a.IsOpen() {
		return domain.Auction{}, domain.ErrAuctionClosed
	}

	if a.BidderID == nil {
		if _, err := grantItem(ctx, tx, a.GuildID, a.SellerID, a.Item, a.Quantity); err != nil {
			return domain.Auction{}, err
		}
		_, err = tx.Exec(ctx,
			`UPDATE auctions SET status = 'closed_unsold', closed_at = $2 WHERE id = $1`,
			auctionID, now)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("postgres: close unsold: %w", err)
		}
		a.State = domain.AuctionClosedUnsold{}
	} else {
		winner, price := *a.BidderID, *a.BidPrice
		if _, err := grantItem(ctx, tx, a.GuildID, winner, a.Item, a.Quantity); err != nil {
			return domain.Auction{}, err
		}
		if err := ensureAccount(ctx, tx, a.GuildID, a.SellerID, s.opening); err != nil {
			return domain.Auction{}, err
		}
		if _, err := credit(ctx, tx, a.GuildID, a.SellerID, price); err != nil {
			return domain.Auction{}, err
		}
		if a.Item.IsPatent() {
			_, err = tx.Exec(ctx, `
				INSERT INTO patents (guild_id, word, owner_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (guild_id, word) DO UPDATE SET owner_id = EXCLUDED.owner_id`,
				a.GuildID, a.Item.Name, winner)
			if err != nil {
				return domain.Auction{}, fmt.Errorf("postgres: transfer patent: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE auctions SET status = 'closed_sold', winner_id = $2, win_price = $3, closed_at = $4
			WHERE id = $1`,
			auctionID, winner, price, now)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("postgres: close sold: %w", err)
		}
		a.State = domain.AuctionClosedSold{WinnerID: winner, Price: price}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: commit finalize: %w", err)
	}
	return a, nil
}

// Discard closes an abandoned auction without returning the item.
func (s *AuctionStore) Discard(ctx context.Context, auctionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET status = 'closed_unsold', closed_at = NOW() WHERE id = $1 AND status = 'open'`,
		auctionID)
	if err != nil {
		return fmt.Errorf("postgres: discard auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuctionClosed
	}
	return nil
}

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var (
		a        domain.Auction
		bidPrice sql.NullInt64
		bidderID sql.NullInt64
		status   string
		winnerID sql.NullInt64
		winPrice sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.GuildID, &a.SellerID, &a.Item.Emoji, &a.Item.Name,
		&a.Quantity, &a.StartPrice, &bidPrice, &bidderID, &status,
		&winnerID, &winPrice, &a.CreatedAt, &a.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, err
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: scan auction: %w", err)
	}

	if bidPrice.Valid {
		a.BidPrice = &bidPrice.Int64
	}
	if bidderID.Valid {
		a.BidderID = &bidderID.Int64
	}
	switch status {
	case "closed_sold":
		a.State = domain.AuctionClosedSold{WinnerID: winnerID.Int64, Price: winPrice.Int64}
	case "closed_unsold":
		a.State = domain.AuctionClosedUnsold{}
	default:
		a.State = domain.AuctionOpen{}
	}
	return a, nil
}
