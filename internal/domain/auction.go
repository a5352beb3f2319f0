package domain

import "time"

// AuctionState is the tagged auction lifecycle state: AuctionOpen,
// AuctionClosedUnsold, or AuctionClosedSold. A sold close always carries the
// winner and winning price.
type AuctionState interface {
	auctionState()
	Status() string
}

// AuctionOpen is an auction still accepting bids.
type AuctionOpen struct{}

// AuctionClosedUnsold is a terminal state: the item returned to the seller
// (or was discarded when the auction was abandoned).
type AuctionClosedUnsold struct{}

// AuctionClosedSold is a terminal state carrying the settlement outcome.
type AuctionClosedSold struct {
	WinnerID int64
	Price    int64
}

func (AuctionOpen) auctionState()         {}
func (AuctionClosedUnsold) auctionState() {}
func (AuctionClosedSold) auctionState()   {}

func (AuctionOpen) Status() string         { return "open" }
func (AuctionClosedUnsold) Status() string { return "closed_unsold" }
func (AuctionClosedSold) Status() string   { return "closed_sold" }

// Auction is an escrow-based ascending-price auction for one inventory item.
// The listed quantity leaves the seller's holding at creation time.
type Auction struct {
	ID         int64
	GuildID    int64
	SellerID   int64
	Item       ItemKey
	Quantity   int64
	StartPrice int64
	BidPrice   *int64 // current best bid, nil until the first bid
	BidderID   *int64
	State      AuctionState
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsOpen reports whether the auction still accepts bids.
func (a Auction) IsOpen() bool {
	_, ok := a.State.(AuctionOpen)
	return ok
}

// MinNextBid returns the smallest amount a new bid must exceed: the current
// best bid if any, otherwise the starting price. Bids must be strictly
// greater than this value.
func (a Auction) MinNextBid() int64 {
	if a.BidPrice != nil {
		return *a.BidPrice
	}
	return a.StartPrice
}

// Bid is one recorded bid, kept as auction history.
type Bid struct {
	ID        int64
	AuctionID int64
	BidderID  int64
	Amount    int64
	PlacedAt  time.Time
}
