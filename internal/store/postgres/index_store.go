package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// IndexStore persists daily indices and their per-minute ticks.
type IndexStore struct {
	pool *pgxpool.Pool
}

func NewIndexStore(pool *pgxpool.Pool) *IndexStore {
	return &IndexStore{pool: pool}
}

func (s *IndexStore) Get(ctx context.Context, guildID int64, day string, cat domain.Category) (domain.DailyIndex, error) {
	var idx domain.DailyIndex
	err := s.pool.QueryRow(ctx, `
		SELECT guild_id, day, category, open, current, lower, upper, high, low
		FROM daily_indices
		WHERE guild_id = $1 AND day = $2 AND category = $3`,
		guildID, day, string(cat)).Scan(
		&idx.GuildID, &idx.Day, &idx.Category,
		&idx.Open, &idx.Current, &idx.Lower, &idx.Upper, &idx.High, &idx.Low)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyIndex{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyIndex{}, fmt.Errorf("postgres: read index: %w", err)
	}
	return idx, nil
}

// Create inserts the row if absent and returns the stored row either way, so
// two schedulers racing on the same minute converge on one opening value.
func (s *IndexStore) Create(ctx context.Context, idx domain.DailyIndex) (domain.DailyIndex, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_indices (guild_id, day, category, open, current, lower, upper, high, low)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (guild_id, day, category) DO NOTHING`,
		idx.GuildID, idx.Day, string(idx.Category),
		idx.Open, idx.Current, idx.Lower, idx.Upper, idx.High, idx.Low)
	if err != nil {
		return domain.DailyIndex{}, fmt.Errorf("postgres: create index: %w", err)
	}
	return s.Get(ctx, idx.GuildID, idx.Day, idx.Category)
}

func (s *IndexStore) Update(ctx context.Context, idx domain.DailyIndex) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE daily_indices SET current = $4, high = $5, low = $6
		WHERE guild_id = $1 AND day = $2 AND category = $3`,
		idx.GuildID, idx.Day, string(idx.Category), idx.Current, idx.High, idx.Low)
	if err != nil {
		return fmt.Errorf("postgres: update index: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PriorClose returns the most recent closing value before day.
func (s *IndexStore) PriorClose(ctx context.Context, guildID int64, day string, cat domain.Category) (float64, error) {
	var close float64
	err := s.pool.QueryRow(ctx, `
		SELECT current FROM daily_indices
		WHERE guild_id = $1 AND category = $2 AND day < $3
		ORDER BY day DESC
		LIMIT 1`,
		guildID, string(cat), day).Scan(&close)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: prior close: %w", err)
	}
	return close, nil
}

func (s *IndexStore) InsertTick(ctx context.Context, tick domain.IndexTick) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO index_ticks (guild_id, minute, category, value, delta, chat_count, react_count, voice_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id, minute, category) DO NOTHING`,
		tick.GuildID, tick.Minute, string(tick.Category),
		tick.Value, tick.Delta, tick.ChatCount, tick.ReactCount, tick.VoiceCount)
	if err != nil {
		return fmt.Errorf("postgres: insert tick: %w", err)
	}
	return nil
}

// CountsSum sums the raw counts over ticks in [fromMinute, toMinute].
func (s *IndexStore) CountsSum(ctx context.Context, guildID int64, cat domain.Category, fromMinute, toMinute int64) (chat, react, voice int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(chat_count), 0), COALESCE(SUM(react_count), 0), COALESCE(SUM(voice_count), 0)
		FROM index_ticks
		WHERE guild_id = $1 AND category = $2 AND minute BETWEEN $3 AND $4`,
		guildID, string(cat), fromMinute, toMinute).Scan(&chat, &react, &voice)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("postgres: sum counts: %w", err)
	}
	return chat, react, voice, nil
}

func (s *IndexStore) TicksSince(ctx context.Context, guildID int64, cat domain.Category, sinceMinute int64) ([]domain.IndexTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guild_id, minute, category, value, delta, chat_count, react_count, voice_count
		FROM index_ticks
		WHERE guild_id = $1 AND category = $2 AND minute >= $3
		ORDER BY minute`,
		guildID, string(cat), sinceMinute)
	if err != nil {
		return nil, fmt.Errorf("postgres: ticks since: %w", err)
	}
	return scanTicks(rows)
}

// TicksBefore returns at most limit ticks older than the cutoff, oldest
// first, for archival.
func (s *IndexStore) TicksBefore(ctx context.Context, cutoffMinute int64, limit int) ([]domain.IndexTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guild_id, minute, category, value, delta, chat_count, react_count, voice_count
		FROM index_ticks
		WHERE minute < $1
		ORDER BY minute
		LIMIT $2`,
		cutoffMinute, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: ticks before: %w", err)
	}
	return scanTicks(rows)
}

func (s *IndexStore) DeleteTicksBefore(ctx context.Context, cutoffMinute int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM index_ticks WHERE minute < $1`, cutoffMinute)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTicks(rows pgx.Rows) ([]domain.IndexTick, error) {
	defer rows.Close()
	var ticks []domain.IndexTick
	for rows.Next() {
		var t domain.IndexTick
		if err := rows.Scan(&t.GuildID, &t.Minute, &t.Category,
			&t.Value, &t.Delta, &t.ChatCount, &t.ReactCount, &t.VoiceCount); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}
