// Package server is the HTTP API of the guild market backend. The chat
// frontend is its only intended client: every interactive operation (balance
// lookups, transfers, trades, orders, auctions) goes through these routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/server/handler"
	"github.com/hyeon-dev/guildmarket/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	APIKey      string // empty disables authentication
	CORSOrigins []string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Ledger   *handler.LedgerHandler
	Holdings *handler.HoldingHandler
	Exchange *handler.ExchangeHandler
	Auctions *handler.AuctionHandler
}

// Server wraps the http.Server with route registration and middleware.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered. Requests flow through
// CORS, logging, and auth middleware before reaching a handler; the health
// check sits inside the chain too since the API key covers the whole surface.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Ledger.
	mux.HandleFunc("GET /api/guilds/{guild}/balances/{user}", handlers.Ledger.GetBalance)
	mux.HandleFunc("GET /api/guilds/{guild}/leaderboard", handlers.Ledger.GetLeaderboard)
	mux.HandleFunc("POST /api/guilds/{guild}/transfers", handlers.Ledger.PostTransfer)

	// Holdings.
	mux.HandleFunc("GET /api/guilds/{guild}/holdings/{user}", handlers.Holdings.ListHoldings)
	mux.HandleFunc("POST /api/guilds/{guild}/holdings/{user}/grant", handlers.Holdings.PostGrant)
	mux.HandleFunc("POST /api/guilds/{guild}/holdings/{user}/discard", handlers.Holdings.PostDiscard)
	mux.HandleFunc("POST /api/guilds/{guild}/items/transfers", handlers.Holdings.PostItemTransfer)

	// Quotes and trading.
	mux.HandleFunc("GET /api/guilds/{guild}/quotes/{symbol}", handlers.Exchange.GetQuote)
	mux.HandleFunc("GET /api/guilds/{guild}/quotes/{symbol}/history", handlers.Exchange.GetQuoteHistory)
	mux.HandleFunc("POST /api/guilds/{guild}/trades", handlers.Exchange.PostTrade)
	mux.HandleFunc("GET /api/guilds/{guild}/trades", handlers.Exchange.GetTrades)
	mux.HandleFunc("POST /api/guilds/{guild}/orders", handlers.Exchange.PostOrder)
	mux.HandleFunc("GET /api/guilds/{guild}/orders", handlers.Exchange.GetOrders)
	mux.HandleFunc("DELETE /api/guilds/{guild}/orders/{id}", handlers.Exchange.DeleteOrder)

	// Auctions.
	mux.HandleFunc("GET /api/guilds/{guild}/auctions", handlers.Auctions.BrowseAuctions)
	mux.HandleFunc("POST /api/guilds/{guild}/auctions", handlers.Auctions.PostAuction)
	mux.HandleFunc("GET /api/guilds/{guild}/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("GET /api/guilds/{guild}/auctions/{id}/bids", handlers.Auctions.GetBids)
	mux.HandleFunc("POST /api/guilds/{guild}/auctions/{id}/bids", handlers.Auctions.PostBid)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start listens for HTTP requests. It blocks until the server fails or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. An empty list
// allows every origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if o == "*" || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
