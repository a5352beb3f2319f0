package domain

import (
	"context"
	"time"
)

// LedgerStore persists per-guild currency balances. Accounts are created
// lazily with the configured starting balance on first access.
type LedgerStore interface {
	Balance(ctx context.Context, guildID, userID int64) (int64, error)
	// Transfer atomically debits from and credits to, returning both new
	// balances. Fails with ErrInvalidAmount, ErrSelfTransfer, or
	// ErrInsufficientFunds without changing either balance.
	Transfer(ctx context.Context, guildID, from, to, amount int64) (int64, int64, error)
	TopBalances(ctx context.Context, guildID int64, limit int) ([]BalanceEntry, error)
	Rank(ctx context.Context, guildID, userID int64) (int, error)
}

// HoldingStore persists per-user item quantities. Quantities are never stored
// as zero; a decrement to zero deletes the row.
type HoldingStore interface {
	Get(ctx context.Context, guildID, userID int64, item ItemKey) (int64, error)
	Grant(ctx context.Context, guildID, userID int64, item ItemKey, qty int64) (int64, error)
	Discard(ctx context.Context, guildID, userID int64, item ItemKey, qty int64) (int64, error)
	List(ctx context.Context, guildID, userID int64) ([]Holding, error)
	Search(ctx context.Context, guildID, userID int64, query string) ([]Holding, error)
	// TransferItem atomically moves qty of item between two users.
	TransferItem(ctx context.Context, guildID, from, to int64, item ItemKey, qty int64) error
}

// SettlementStore executes one trade as a single transaction: ledger
// debit/credit, holding grant/discard, and the trade journal row all commit
// together or not at all. Fails with ErrInsufficientFunds or
// ErrInsufficientHolding when the account cannot settle.
type SettlementStore interface {
	Settle(ctx context.Context, trade Trade) (Trade, error)
}

// IndexStore persists daily indices and their per-minute ticks.
type IndexStore interface {
	Get(ctx context.Context, guildID int64, day string, cat Category) (DailyIndex, error)
	// Create inserts the row if absent and returns the stored row either way,
	// so concurrent lazy creation converges on one opening value.
	Create(ctx context.Context, idx DailyIndex) (DailyIndex, error)
	Update(ctx context.Context, idx DailyIndex) error
	// PriorClose returns the most recent closing value before day, or
	// ErrNotFound when the guild has no earlier index for the category.
	PriorClose(ctx context.Context, guildID int64, day string, cat Category) (float64, error)
	InsertTick(ctx context.Context, tick IndexTick) error
	// CountsSum sums the raw chat/react/voice counts over ticks in
	// [fromMinute, toMinute].
	CountsSum(ctx context.Context, guildID int64, cat Category, fromMinute, toMinute int64) (chat, react, voice int64, err error)
	TicksSince(ctx context.Context, guildID int64, cat Category, sinceMinute int64) ([]IndexTick, error)
	TicksBefore(ctx context.Context, cutoffMinute int64, limit int) ([]IndexTick, error)
	DeleteTicksBefore(ctx context.Context, cutoffMinute int64) (int64, error)
}

// QuoteStore persists per-minute instrument price observations.
type QuoteStore interface {
	Insert(ctx context.Context, tick QuoteTick) error
	Since(ctx context.Context, guildID int64, sym Symbol, sinceMinute int64) ([]QuoteTick, error)
	Before(ctx context.Context, cutoffMinute int64, limit int) ([]QuoteTick, error)
	DeleteBefore(ctx context.Context, cutoffMinute int64) (int64, error)
}

// OrderStore persists standing orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	GetByID(ctx context.Context, guildID, id int64) (Order, error)
	ListOpen(ctx context.Context, guildID int64) ([]Order, error)
	ListOpenByUser(ctx context.Context, guildID, userID int64) ([]Order, error)
	// MarkFilled transitions open → filled; any other starting state fails
	// with ErrOrderNotOpen.
	MarkFilled(ctx context.Context, guildID, id int64, price float64, at time.Time) error
	// Cancel transitions open → cancelled for the order's owner.
	Cancel(ctx context.Context, guildID, id, userID int64, at time.Time) error
}

// TradeStore reads the trade journal.
type TradeStore interface {
	ListByUser(ctx context.Context, guildID, userID int64, limit int) ([]Trade, error)
}

// AuctionStore persists auctions and executes their multi-row transitions
// atomically. Create escrows the listed quantity out of the seller's holding
// in the same transaction as the auction insert.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) (Auction, error)
	GetByID(ctx context.Context, guildID, id int64) (Auction, error)
	ListOpen(ctx context.Context, guildID int64, query string, limit int) ([]Auction, error)
	CountOpen(ctx context.Context, guildID int64) (int64, error)
	Bids(ctx context.Context, auctionID int64) ([]Bid, error)
	// PlaceBid debits the bidder, refunds the previous bidder, and records
	// the bid, all in one transaction. Fails with ErrAuctionClosed,
	// ErrSelfBid, ErrBidTooLow, or ErrInsufficientFunds.
	PlaceBid(ctx context.Context, guildID, auctionID, bidderID, amount int64) (Auction, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Auction, error)
	// Finalize settles one expired auction exactly once: the status is
	// re-checked inside the transaction, so a second call is a no-op that
	// returns the already-closed row.
	Finalize(ctx context.Context, auctionID int64, now time.Time) (Auction, error)
	// Discard closes an abandoned auction without returning the item.
	Discard(ctx context.Context, auctionID int64) error
}

// SettingsStore persists per-guild settings and the set of known guilds the
// scheduler iterates over.
type SettingsStore interface {
	Get(ctx context.Context, guildID int64) (GuildSettings, error)
	Upsert(ctx context.Context, s GuildSettings) error
	RegisterGuild(ctx context.Context, guildID int64) error
	ListGuilds(ctx context.Context) ([]int64, error)
}
