package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// SettingsStore persists per-guild settings and the guild registry the
// scheduler iterates over.
type SettingsStore struct {
	pool *pgxpool.Pool
}

func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get returns the guild's settings, defaults when no row exists.
func (s *SettingsStore) Get(ctx context.Context, guildID int64) (domain.GuildSettings, error) {
	var gs domain.GuildSettings
	err := s.pool.QueryRow(ctx, `
		SELECT guild_id, notify_channel_id, webhook_url, alerts_enabled
		FROM guild_settings WHERE guild_id = $1`,
		guildID).Scan(&gs.GuildID, &gs.NotifyChannelID, &gs.WebhookURL, &gs.AlertsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultSettings(guildID), nil
	}
	if err != nil {
		return domain.GuildSettings{}, fmt.Errorf("postgres: read settings: %w", err)
	}
	return gs, nil
}

func (s *SettingsStore) Upsert(ctx context.Context, gs domain.GuildSettings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guild_settings (guild_id, notify_channel_id, webhook_url, alerts_enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id) DO UPDATE SET
			notify_channel_id = EXCLUDED.notify_channel_id,
			webhook_url = EXCLUDED.webhook_url,
			alerts_enabled = EXCLUDED.alerts_enabled`,
		gs.GuildID, gs.NotifyChannelID, gs.WebhookURL, gs.AlertsEnabled)
	if err != nil {
		return fmt.Errorf("postgres: upsert settings: %w", err)
	}
	return nil
}

// RegisterGuild records a guild for the scheduler's iteration set.
func (s *SettingsStore) RegisterGuild(ctx context.Context, guildID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guilds (guild_id) VALUES ($1)
		ON CONFLICT (guild_id) DO NOTHING`,
		guildID)
	if err != nil {
		return fmt.Errorf("postgres: register guild: %w", err)
	}
	return nil
}

func (s *SettingsStore) ListGuilds(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT guild_id FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list guilds: %w", err)
	}
	defer rows.Close()

	var guilds []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan guild: %w", err)
		}
		guilds = append(guilds, id)
	}
	return guilds, rows.Err()
}
