package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// LedgerService defines the methods the ledger handler requires.
type LedgerService interface {
	Balance(ctx context.Context, guildID, userID int64) (int64, error)
	Transfer(ctx context.Context, guildID, from, to, amount int64) (int64, int64, error)
	Top(ctx context.Context, guildID int64, limit int) ([]domain.BalanceEntry, error)
	Rank(ctx context.Context, guildID, userID int64) (int, error)
}

// LedgerHandler serves balance, leaderboard, and transfer endpoints.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// GetBalance returns the user's balance and leaderboard rank.
// GET /api/guilds/{guild}/balances/{user}
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
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

	bal, err := h.ledger.Balance(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, "balance", err)
		return
	}
	rank, err := h.ledger.Rank(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, "rank", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": bal,
		"rank":    rank,
	})
}

type leaderboardEntry struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
	Rank    int   `json:"rank"`
}

// GetLeaderboard returns the guild's richest accounts in rank order.
// GET /api/guilds/{guild}/leaderboard?limit=10
func (h *LedgerHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	entries, err := h.ledger.Top(r.Context(), guildID, queryInt(r, "limit", 10))
	if err != nil {
		h.fail(w, r, "leaderboard", err)
		return
	}

	out := make([]leaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardEntry{UserID: e.UserID, Balance: e.Balance, Rank: e.Rank})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

type transferRequest struct {
	From   int64 `json:"from"`
	To     int64 `json:"to"`
	Amount int64 `json:"amount"`
}

// PostTransfer moves currency between two users.
// POST /api/guilds/{guild}/transfers
func (h *LedgerHandler) PostTransfer(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	fromBal, toBal, err := h.ledger.Transfer(r.Context(), guildID, req.From, req.To, req.Amount)
	if err != nil {
		h.fail(w, r, "transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from_balance": fromBal,
		"to_balance":   toBal,
	})
}

func (h *LedgerHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if writeDomainError(w, err) {
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
