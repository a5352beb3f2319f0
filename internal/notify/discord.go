package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Embed colors, in Discord's decimal RGB encoding.
const (
	colorGreen = 0x2ecc71 // upward spikes
	colorRed   = 0xe74c3c // downward spikes
	colorGold  = 0xf1c40f // new all-time highs
	colorGray  = 0x95a5a6 // everything else
)

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordSender delivers alerts via a Discord webhook as rich embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func embedColor(event string) int {
	switch event {
	case domain.EventSpikeUp:
		return colorGreen
	case domain.EventSpikeDown:
		return colorRed
	case domain.EventNewHigh:
		return colorGold
	default:
		return colorGray
	}
}

// Send posts the alert to the Discord webhook as a single embed. Index alerts
// carry Value, Open and Change as inline fields; alerts without index numbers
// (Value == 0) render as a bare title plus description.
func (d *DiscordSender) Send(ctx context.Context, alert domain.Alert) error {
	embed := discordEmbed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       embedColor(alert.Event),
	}
	if !alert.At.IsZero() {
		embed.Timestamp = alert.At.UTC().Format(time.RFC3339)
	}
	if alert.Value > 0 {
		embed.Fields = []discordEmbedField{
			{Name: "Value", Value: fmt.Sprintf("%.2f", alert.Value), Inline: true},
			{Name: "Open", Value: fmt.Sprintf("%.2f", alert.Open), Inline: true},
			{Name: "Change", Value: fmt.Sprintf("%+.2f%%", alert.ChangePct), Inline: true},
		}
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
