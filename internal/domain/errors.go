package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientHolding = errors.New("insufficient item quantity")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrMarketClosed        = errors.New("market is closed")
	ErrOrderNotOpen        = errors.New("order is not open")
	ErrAuctionClosed       = errors.New("auction is closed")
	ErrSelfBid             = errors.New("seller cannot bid on own auction")
	ErrBidTooLow           = errors.New("bid must be higher than current price")
	ErrLockHeld            = errors.New("lock already held")
)
