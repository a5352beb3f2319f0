// Package handler implements the HTTP handlers of the guild market API. Each
// handler declares the narrow service interface it needs, so tests can drive
// it with the real services over in-memory stores.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps well-known domain errors onto HTTP status codes.
// Validation failures are 400, missing entities 404, and state conflicts
// (closed market, drained balance, stale order) 409. Anything unrecognized is
// a 500 with a generic message so internals never leak to the frontend.
func writeDomainError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrSelfBid),
		errors.Is(err, domain.ErrUnknownSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientHolding),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrOrderNotOpen),
		errors.Is(err, domain.ErrAuctionClosed),
		errors.Is(err, domain.ErrBidTooLow):
		writeError(w, http.StatusConflict, err.Error())
	default:
		return false
	}
	return true
}

// pathID extracts a required int64 path parameter (Go 1.22 routing).
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// queryInt returns a query parameter as int, or def when absent or invalid.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// queryInt64 returns a query parameter as int64, or 0 when absent or invalid.
func queryInt64(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return n
}

// ---------------------------------------------------------------------------
// Wire representations. Domain types carry sealed state interfaces that do
// not marshal; these flatten them to a status string.
// ---------------------------------------------------------------------------

type holdingJSON struct {
	Emoji    string `json:"emoji"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

func toHoldingJSON(h domain.Holding) holdingJSON {
	return holdingJSON{Emoji: h.Item.Emoji, Name: h.Item.Name, Quantity: h.Quantity}
}

func toHoldingsJSON(hs []domain.Holding) []holdingJSON {
	out := make([]holdingJSON, 0, len(hs))
	for _, h := range hs {
		out = append(out, toHoldingJSON(h))
	}
	return out
}

type tradeJSON struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	Notional   int64   `json:"notional"`
	OrderID    *int64  `json:"order_id,omitempty"`
	ExecutedAt string  `json:"executed_at"`
}

func toTradeJSON(t domain.Trade) tradeJSON {
	return tradeJSON{
		ID:         t.ID,
		UserID:     t.UserID,
		Symbol:     string(t.Symbol),
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		Price:      t.Price,
		Notional:   t.Notional,
		OrderID:    t.OrderID,
		ExecutedAt: t.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

type orderJSON struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Quantity   int64   `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

func toOrderJSON(o domain.Order) orderJSON {
	return orderJSON{
		ID:         o.ID,
		UserID:     o.UserID,
		Symbol:     string(o.Symbol),
		Side:       string(o.Side),
		Type:       string(o.Type),
		Quantity:   o.Quantity,
		LimitPrice: o.LimitPrice,
		Status:     o.State.Status(),
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type auctionJSON struct {
	ID         int64  `json:"id"`
	SellerID   int64  `json:"seller_id"`
	Emoji      string `json:"emoji"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	StartPrice int64  `json:"start_price"`
	BidPrice   *int64 `json:"bid_price,omitempty"`
	BidderID   *int64 `json:"bidder_id,omitempty"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
}

func toAuctionJSON(a domain.Auction) auctionJSON {
	return auctionJSON{
		ID:         a.ID,
		SellerID:   a.SellerID,
		Emoji:      a.Item.Emoji,
		Name:       a.Item.Name,
		Quantity:   a.Quantity,
		StartPrice: a.StartPrice,
		BidPrice:   a.BidPrice,
		BidderID:   a.BidderID,
		Status:     a.State.Status(),
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  a.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
