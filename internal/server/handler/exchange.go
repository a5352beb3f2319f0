package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/service"
)

// ExchangeService defines the trading methods the exchange handler requires.
type ExchangeService interface {
	Submit(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64) (service.ExecOutcome, error)
	PlaceLimitOrder(ctx context.Context, guildID, userID int64, rawSym string, side domain.OrderSide, qty int64, limit float64) (domain.Order, error)
	OpenOrders(ctx context.Context, guildID, userID int64) ([]domain.Order, error)
	Cancel(ctx context.Context, guildID, orderID, userID int64) error
	History(ctx context.Context, guildID, userID int64, limit int) ([]domain.Trade, error)
}

// QuoteService answers display-price and price-history queries. Satisfied by
// market.Pricer.
type QuoteService interface {
	Quote(ctx context.Context, guildID int64, sym domain.Symbol, at time.Time) (float64, error)
	History(ctx context.Context, guildID int64, sym domain.Symbol, sinceMinute int64) ([]domain.QuoteTick, error)
}

// ExchangeHandler serves quote, trade, and standing-order endpoints.
type ExchangeHandler struct {
	exchange ExchangeService
	quotes   QuoteService
	logger   *slog.Logger
	now      func() time.Time
}

// NewExchangeHandler creates an ExchangeHandler.
func NewExchangeHandler(exchange ExchangeService, quotes QuoteService, logger *slog.Logger) *ExchangeHandler {
	return &ExchangeHandler{exchange: exchange, quotes: quotes, logger: logger, now: time.Now}
}

// GetQuote returns the current display price of a symbol.
// GET /api/guilds/{guild}/quotes/{symbol}
func (h *ExchangeHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	sym, err := domain.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := h.quotes.Quote(r.Context(), guildID, sym, h.now())
	if err != nil {
		h.fail(w, r, "quote", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": string(sym),
		"price":  price,
	})
}

type quoteTickJSON struct {
	Minute int64   `json:"minute"`
	Price  float64 `json:"price"`
}

// GetQuoteHistory returns per-minute quote rows since ?since= (unix minute).
// GET /api/guilds/{guild}/quotes/{symbol}/history
func (h *ExchangeHandler) GetQuoteHistory(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	sym, err := domain.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ticks, err := h.quotes.History(r.Context(), guildID, sym, queryInt64(r, "since"))
	if err != nil {
		h.fail(w, r, "quote history", err)
		return
	}

	out := make([]quoteTickJSON, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, quoteTickJSON{Minute: t.Minute, Price: t.Price})
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": string(sym), "ticks": out})
}

type tradeRequest struct {
	UserID   int64  `json:"user_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
}

// PostTrade submits an interactive buy or sell. Inside the trading window it
// settles immediately and returns the trade; outside it queues a
// market-at-open order and returns that instead.
// POST /api/guilds/{guild}/trades
func (h *ExchangeHandler) PostTrade(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	outcome, err := h.exchange.Submit(r.Context(), guildID, req.UserID, req.Symbol, side, req.Quantity)
	if err != nil {
		h.fail(w, r, "trade", err)
		return
	}

	if outcome.Trade != nil {
		writeJSON(w, http.StatusCreated, map[string]any{
			"settled": true,
			"trade":   toTradeJSON(*outcome.Trade),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"settled": false,
		"order":   toOrderJSON(*outcome.Order),
	})
}

// GetTrades returns the user's recent trades, newest first.
// GET /api/guilds/{guild}/trades?user_id=&limit=20
func (h *ExchangeHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	trades, err := h.exchange.History(r.Context(), guildID, userID, queryInt(r, "limit", 20))
	if err != nil {
		h.fail(w, r, "trade history", err)
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

type orderRequest struct {
	UserID     int64   `json:"user_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

// PostOrder queues a limit order.
// POST /api/guilds/{guild}/orders
func (h *ExchangeHandler) PostOrder(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	order, err := h.exchange.PlaceLimitOrder(r.Context(), guildID, req.UserID, req.Symbol, side, req.Quantity, req.LimitPrice)
	if err != nil {
		h.fail(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderJSON(order))
}

// GetOrders returns the user's open orders.
// GET /api/guilds/{guild}/orders?user_id=
func (h *ExchangeHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	orders, err := h.exchange.OpenOrders(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}

	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// DeleteOrder cancels one of the user's open orders.
// DELETE /api/guilds/{guild}/orders/{id}?user_id=
func (h *ExchangeHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	if err := h.exchange.Cancel(r.Context(), guildID, orderID, userID); err != nil {
		h.fail(w, r, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func parseSide(s string) (domain.OrderSide, bool) {
	switch domain.OrderSide(s) {
	case domain.OrderSideBuy, domain.OrderSideSell:
		return domain.OrderSide(s), true
	default:
		return "", false
	}
}

func (h *ExchangeHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if writeDomainError(w, err) {
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
