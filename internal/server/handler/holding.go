package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// HoldingService defines the methods the holdings handler requires.
type HoldingService interface {
	List(ctx context.Context, guildID, userID int64) ([]domain.Holding, error)
	Search(ctx context.Context, guildID, userID int64, query string) ([]domain.Holding, error)
	Grant(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error)
	Discard(ctx context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error)
	Transfer(ctx context.Context, guildID, from, to int64, item domain.ItemKey, qty int64) error
}

// HoldingHandler serves inventory endpoints.
type HoldingHandler struct {
	holdings HoldingService
	logger   *slog.Logger
}

// NewHoldingHandler creates a HoldingHandler.
func NewHoldingHandler(holdings HoldingService, logger *slog.Logger) *HoldingHandler {
	return &HoldingHandler{holdings: holdings, logger: logger}
}

// ListHoldings returns the user's inventory, optionally filtered by ?q=.
// GET /api/guilds/{guild}/holdings/{user}
func (h *HoldingHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	userID, err := pathID(r, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var holdings []domain.Holding
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		holdings, err = h.holdings.Search(r.Context(), guildID, userID, q)
	} else {
		holdings, err = h.holdings.List(r.Context(), guildID, userID)
	}
	if err != nil {
		h.fail(w, r, "list holdings", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"holdings": toHoldingsJSON(holdings)})
}

type itemChangeRequest struct {
	Emoji    string `json:"emoji"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

func (req itemChangeRequest) key() domain.ItemKey {
	return domain.ItemKey{Emoji: req.Emoji, Name: req.Name}
}

// PostGrant adds items to the user's inventory.
// POST /api/guilds/{guild}/holdings/{user}/grant
func (h *HoldingHandler) PostGrant(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "grant", h.holdings.Grant)
}

// PostDiscard removes items from the user's inventory.
// POST /api/guilds/{guild}/holdings/{user}/discard
func (h *HoldingHandler) PostDiscard(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "discard", h.holdings.Discard)
}

func (h *HoldingHandler) change(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, int64, int64, domain.ItemKey, int64) (int64, error)) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	userID, err := pathID(r, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req itemChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "item name is required")
		return
	}

	remaining, err := apply(r.Context(), guildID, userID, req.key(), req.Quantity)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"quantity": remaining})
}

type itemTransferRequest struct {
	From     int64  `json:"from"`
	To       int64  `json:"to"`
	Emoji    string `json:"emoji"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// PostItemTransfer moves items between two users.
// POST /api/guilds/{guild}/items/transfers
func (h *HoldingHandler) PostItemTransfer(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	var req itemTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "item name is required")
		return
	}

	item := domain.ItemKey{Emoji: req.Emoji, Name: req.Name}
	if err := h.holdings.Transfer(r.Context(), guildID, req.From, req.To, item, req.Quantity); err != nil {
		h.fail(w, r, "item transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (h *HoldingHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if writeDomainError(w, err) {
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
