package domain

import "time"

// Account is a currency balance for one platform user inside one guild.
// Accounts are created lazily on first read with the configured starting
// balance; the balance never goes negative.
type Account struct {
	GuildID   int64
	UserID    int64
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceEntry is one row of a guild leaderboard query.
type BalanceEntry struct {
	UserID  int64
	Balance int64
	Rank    int
}
