package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// AuctionService defines the methods the auction handler requires.
type AuctionService interface {
	List(ctx context.Context, guildID, sellerID int64, item domain.ItemKey, qty, startPrice int64, duration time.Duration) (domain.Auction, error)
	Bid(ctx context.Context, guildID, auctionID, bidderID, amount int64) (domain.Auction, error)
	Get(ctx context.Context, guildID, auctionID int64) (domain.Auction, error)
	Browse(ctx context.Context, guildID int64, query string, limit int) ([]domain.Auction, error)
	Bids(ctx context.Context, auctionID int64) ([]domain.Bid, error)
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logger}
}

// BrowseAuctions lists open auctions, optionally filtered by ?q=.
// GET /api/guilds/{guild}/auctions?q=&limit=20
func (h *AuctionHandler) BrowseAuctions(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	auctions, err := h.auctions.Browse(r.Context(), guildID, r.URL.Query().Get("q"), queryInt(r, "limit", 20))
	if err != nil {
		h.fail(w, r, "browse auctions", err)
		return
	}

	out := make([]auctionJSON, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionJSON(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

type listAuctionRequest struct {
	SellerID   int64  `json:"seller_id"`
	Emoji      string `json:"emoji"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	StartPrice int64  `json:"start_price"`
	Duration   string `json:"duration"` // Go duration string, e.g. "24h"
}

// PostAuction lists an item for auction, escrowing it from the seller.
// POST /api/guilds/{guild}/auctions
func (h *AuctionHandler) PostAuction(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	var req listAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "item name is required")
		return
	}
	dur, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration: "+req.Duration)
		return
	}

	item := domain.ItemKey{Emoji: req.Emoji, Name: req.Name}
	auction, err := h.auctions.List(r.Context(), guildID, req.SellerID, item, req.Quantity, req.StartPrice, dur)
	if err != nil {
		h.fail(w, r, "list auction", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuctionJSON(auction))
}

// GetAuction returns one auction.
// GET /api/guilds/{guild}/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	auctionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.auctions.Get(r.Context(), guildID, auctionID)
	if err != nil {
		h.fail(w, r, "get auction", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionJSON(auction))
}

type bidJSON struct {
	BidderID int64  `json:"bidder_id"`
	Amount   int64  `json:"amount"`
	PlacedAt string `json:"placed_at"`
}

// GetBids returns the bid history of one auction, oldest first.
// GET /api/guilds/{guild}/auctions/{id}/bids
func (h *AuctionHandler) GetBids(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	bids, err := h.auctions.Bids(r.Context(), auctionID)
	if err != nil {
		h.fail(w, r, "list bids", err)
		return
	}

	out := make([]bidJSON, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidJSON{
			BidderID: b.BidderID,
			Amount:   b.Amount,
			PlacedAt: b.PlacedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

type bidRequest struct {
	BidderID int64 `json:"bidder_id"`
	Amount   int64 `json:"amount"`
}

// PostBid places a bid, escrowing the bidder's funds and refunding the
// previous bidder.
// POST /api/guilds/{guild}/auctions/{id}/bids
func (h *AuctionHandler) PostBid(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	auctionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	auction, err := h.auctions.Bid(r.Context(), guildID, auctionID, req.BidderID, req.Amount)
	if err != nil {
		h.fail(w, r, "bid", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuctionJSON(auction))
}

func (h *AuctionHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if writeDomainError(w, err) {
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
