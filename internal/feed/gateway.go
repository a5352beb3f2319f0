// Package feed ingests guild activity events from the frontend gateway over
// a websocket and applies them to the activity counters.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyeon-dev/guildmarket/internal/config"
	"github.com/hyeon-dev/guildmarket/internal/counter"
	"github.com/hyeon-dev/guildmarket/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
)

// event is the wire shape the frontend gateway sends for every guild signal.
type event struct {
	Type    string `json:"type"`
	GuildID int64  `json:"guild_id"`
	UserID  int64  `json:"user_id"`
	Bot     bool   `json:"bot"`
	Joined  bool   `json:"joined"`
}

// Gateway is the websocket client for the guild event feed. It dials the
// frontend gateway, decodes events, feeds the counter store and roster, and
// reconnects with exponential backoff.
type Gateway struct {
	cfg      config.FeedConfig
	counters *counter.Store
	roster   *Roster
	settings domain.SettingsStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewGateway creates a Gateway. settings may be nil; guilds are then not
// registered on first sight.
func NewGateway(cfg config.FeedConfig, counters *counter.Store, roster *Roster, settings domain.SettingsStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		counters: counters,
		roster:   roster,
		settings: settings,
		logger:   logger.With(slog.String("component", "feed")),
		now:      time.Now,
	}
}

// Run connects and consumes events until the context is cancelled. A dropped
// connection is redialed with exponential backoff between the configured
// bounds; the backoff resets after a successful session.
func (g *Gateway) Run(ctx context.Context) error {
	delay := g.cfg.ReconnectMin.Duration

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			g.logger.Warn("feed session ended",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > g.cfg.ReconnectMax.Duration {
			delay = g.cfg.ReconnectMax.Duration
		}
	}
}

// session dials the gateway and reads events until the connection fails.
func (g *Gateway) session(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: g.cfg.HandshakeGrace.Duration,
	}
	header := http.Header{}
	if g.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, g.cfg.GatewayURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	g.logger.Info("feed connected", slog.String("url", g.cfg.GatewayURL))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go g.pingLoop(pingCtx, conn)

	// Close the socket when the context ends so ReadMessage unblocks.
	go func() {
		<-pingCtx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		g.handleRaw(ctx, raw)
	}
}

func (g *Gateway) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) handleRaw(ctx context.Context, raw []byte) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		g.logger.Debug("unparseable feed event", slog.Int("len", len(raw)))
		return
	}
	g.handleEvent(ctx, ev)
}

// handleEvent applies one decoded event. Bot authors never move the counters.
func (g *Gateway) handleEvent(ctx context.Context, ev event) {
	if ev.GuildID == 0 {
		return
	}
	if g.settings != nil && ev.Type == "guild_register" {
		if err := g.settings.RegisterGuild(ctx, ev.GuildID); err != nil {
			g.logger.Warn("guild register failed",
				slog.Int64("guild", ev.GuildID),
				slog.String("error", err.Error()))
		}
		return
	}
	if ev.Bot {
		return
	}

	switch ev.Type {
	case "message":
		g.counters.RecordMessage(ev.GuildID, g.now())
	case "reaction":
		g.counters.RecordReaction(ev.GuildID)
	case "voice_state":
		g.counters.RecordVoice(ev.GuildID, ev.UserID, ev.Joined)
	case "member_state":
		if g.roster != nil {
			g.roster.SetMember(ev.GuildID, ev.UserID, ev.Joined)
		}
	default:
		// Unknown event types are ignored so the gateway can grow its
		// vocabulary without breaking older backends.
	}
}
