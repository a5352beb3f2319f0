package domain

// GuildSettings holds per-guild knobs the backend consults at runtime.
// Missing rows read as defaults (alerts on, no webhook).
type GuildSettings struct {
	GuildID         int64
	NotifyChannelID int64
	WebhookURL      string
	AlertsEnabled   bool
}

// DefaultSettings returns the settings used for a guild with no stored row.
func DefaultSettings(guildID int64) GuildSettings {
	return GuildSettings{GuildID: guildID, AlertsEnabled: true}
}
