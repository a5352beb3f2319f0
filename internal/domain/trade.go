package domain

import (
	"math"
	"time"
)

// Trade is one executed buy or sell, whether interactive or from the
// matching loop. Notional is the rounded ledger amount moved.
type Trade struct {
	ID         int64
	GuildID    int64
	UserID     int64
	Symbol     Symbol
	Side       OrderSide
	Quantity   int64
	Price      float64
	Notional   int64
	OrderID    *int64 // set when the trade settled a standing order
	ExecutedAt time.Time
}

// Notional computes the rounded ledger amount for a quantity at a price.
func Notional(price float64, qty int64) int64 {
	return int64(math.Round(price * float64(qty)))
}
