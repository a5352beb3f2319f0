package domain

import (
	"testing"
	"time"
)

func TestOrderEligible(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		price float64
		want  bool
	}{
		{
			name:  "market-at-open always eligible",
			order: Order{Type: OrderTypeMarketOpen, Side: OrderSideBuy, State: OrderOpen{}},
			price: 9999,
			want:  true,
		},
		{
			name:  "limit buy below limit",
			order: Order{Type: OrderTypeLimit, Side: OrderSideBuy, LimitPrice: 100, State: OrderOpen{}},
			price: 95,
			want:  true,
		},
		{
			name:  "limit buy at limit",
			order: Order{Type: OrderTypeLimit, Side: OrderSideBuy, LimitPrice: 100, State: OrderOpen{}},
			price: 100,
			want:  true,
		},
		{
			name:  "limit buy above limit",
			order: Order{Type: OrderTypeLimit, Side: OrderSideBuy, LimitPrice: 100, State: OrderOpen{}},
			price: 100.01,
			want:  false,
		},
		{
			name:  "limit sell above limit",
			order: Order{Type: OrderTypeLimit, Side: OrderSideSell, LimitPrice: 100, State: OrderOpen{}},
			price: 101,
			want:  true,
		},
		{
			name:  "limit sell below limit",
			order: Order{Type: OrderTypeLimit, Side: OrderSideSell, LimitPrice: 100, State: OrderOpen{}},
			price: 99.9,
			want:  false,
		},
		{
			name:  "filled order never eligible",
			order: Order{Type: OrderTypeMarketOpen, State: OrderFilled{Price: 100, FilledAt: time.Now()}},
			price: 100,
			want:  false,
		},
		{
			name:  "cancelled order never eligible",
			order: Order{Type: OrderTypeLimit, Side: OrderSideBuy, LimitPrice: 100, State: OrderCancelled{CancelledAt: time.Now()}},
			price: 50,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.Eligible(tt.price); got != tt.want {
				t.Errorf("Eligible(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestMatchResultString(t *testing.T) {
	if MatchFilled.String() != "filled" || MatchPending.String() != "pending" || MatchRejected.String() != "rejected" {
		t.Errorf("unexpected MatchResult names: %s %s %s", MatchFilled, MatchPending, MatchRejected)
	}
}

func TestNotionalRounding(t *testing.T) {
	tests := []struct {
		price float64
		qty   int64
		want  int64
	}{
		{100.0, 5, 500},
		{30.0, 5, 150},
		{99.4, 1, 99},
		{99.5, 1, 100},
		{33.34, 3, 100},
	}
	for _, tt := range tests {
		if got := Notional(tt.price, tt.qty); got != tt.want {
			t.Errorf("Notional(%v, %d) = %d, want %d", tt.price, tt.qty, got, tt.want)
		}
	}
}
