package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes the two standing-order policies.
type OrderType string

const (
	// OrderTypeMarketOpen executes unconditionally the next time the matching
	// loop runs; used to queue trades placed while the market is closed.
	OrderTypeMarketOpen OrderType = "market_open"
	OrderTypeLimit      OrderType = "limit"
)

// OrderState is the tagged order lifecycle state. Exactly three variants
// exist: OrderOpen, OrderFilled, and OrderCancelled. The sealed marker keeps
// illegal combinations (a fill without a price) unrepresentable.
type OrderState interface {
	orderState()
	Status() string
}

// OrderOpen is an order still waiting to execute.
type OrderOpen struct{}

// OrderFilled is a terminal state carrying the execution price and time.
type OrderFilled struct {
	Price    float64
	FilledAt time.Time
}

// OrderCancelled is a terminal state set by explicit user cancellation.
type OrderCancelled struct {
	CancelledAt time.Time
}

func (OrderOpen) orderState()      {}
func (OrderFilled) orderState()    {}
func (OrderCancelled) orderState() {}

func (OrderOpen) Status() string      { return "open" }
func (OrderFilled) Status() string    { return "filled" }
func (OrderCancelled) Status() string { return "cancelled" }

// Order is a standing market-at-open or limit order.
type Order struct {
	ID         int64
	GuildID    int64
	UserID     int64
	Symbol     Symbol
	Side       OrderSide
	Type       OrderType
	Quantity   int64
	LimitPrice float64 // meaningful only when Type == OrderTypeLimit
	State      OrderState
	CreatedAt  time.Time
}

// IsOpen reports whether the order can still execute or be cancelled.
func (o Order) IsOpen() bool {
	_, ok := o.State.(OrderOpen)
	return ok
}

// Eligible reports whether the order may execute at the given price.
// Market-at-open orders execute unconditionally; a limit buy fills once the
// price is at or below the limit, a limit sell once it is at or above.
func (o Order) Eligible(price float64) bool {
	if !o.IsOpen() {
		return false
	}
	if o.Type == OrderTypeMarketOpen {
		return true
	}
	if o.Side == OrderSideBuy {
		return price <= o.LimitPrice
	}
	return price >= o.LimitPrice
}

// MatchResult is the three-way outcome of evaluating one order on one tick.
type MatchResult int

const (
	// MatchPending means the order stays open: either its condition is not yet
	// met, or it is met but the account cannot settle (insufficient funds or
	// holding) and the order retries on a later tick.
	MatchPending MatchResult = iota
	MatchFilled
	MatchRejected
)

// String returns the lowercase name of the match result.
func (r MatchResult) String() string {
	switch r {
	case MatchFilled:
		return "filled"
	case MatchRejected:
		return "rejected"
	default:
		return "pending"
	}
}
