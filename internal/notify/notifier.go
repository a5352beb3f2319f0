// Package notify provides multi-channel alert delivery. Alerts are
// dispatched to all registered senders (Discord webhook, Telegram, and the
// guild's own configured webhook) and can be filtered by event type so
// operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one alert, rendered in the channel's native format.
	Send(ctx context.Context, alert domain.Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders plus the per-guild
// webhook from guild settings, when one is configured. It maintains a set of
// allowed event types; events outside the set are dropped.
type Notifier struct {
	senders  []Sender
	events   map[string]bool // allowed event types
	settings domain.SettingsStore
	logger   *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded. If events
// is empty, all event types are allowed. settings may be nil; per-guild
// webhooks are then skipped.
func NewNotifier(senders []Sender, events []string, settings domain.SettingsStore, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		settings: settings,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Send delivers one alert to every configured channel, including the guild's
// own webhook when its settings carry one. Errors from individual senders are
// collected; a single sender failure does not prevent delivery to the rest.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if len(n.events) > 0 && !n.events[alert.Event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", alert.Event),
		)
		return nil
	}

	senders := n.senders
	if n.settings != nil {
		gs, err := n.settings.Get(ctx, alert.GuildID)
		if err != nil {
			n.logger.WarnContext(ctx, "guild settings lookup failed",
				slog.Int64("guild", alert.GuildID),
				slog.String("error", err.Error()),
			)
		} else if gs.WebhookURL != "" {
			senders = append(append([]Sender{}, senders...), NewDiscordSender(gs.WebhookURL))
		}
	}

	if len(senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
