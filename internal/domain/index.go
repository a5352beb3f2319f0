package domain

import "time"

// DailyIndex is the bounded random-walk state for one (guild, day, category).
// Bounds are fixed at creation from the opening value and never change.
type DailyIndex struct {
	GuildID  int64
	Day      string // trading day, YYYY-MM-DD in the market timezone
	Category Category
	Open     float64
	Current  float64
	Lower    float64
	Upper    float64
	High     float64
	Low      float64
}

// IndexTick is one immutable per-minute observation of a category index,
// carrying the raw counts that produced it for later relative-activity
// comparisons and charting.
type IndexTick struct {
	GuildID    int64
	Minute     int64 // unix timestamp truncated to the minute
	Category   Category
	Value      float64
	Delta      float64
	ChatCount  int64
	ReactCount int64
	VoiceCount int64
}

// QuoteTick is one per-minute price observation of a tradable instrument,
// kept for charting consumers.
type QuoteTick struct {
	GuildID int64
	Symbol  Symbol
	Minute  int64
	Price   float64
}

// ActivitySnapshot is the per-minute counter readout consumed by the index
// engine. MeanGap carries a large sentinel when no gap samples exist so that
// the speed bonus never applies to an idle minute.
type ActivitySnapshot struct {
	GuildID    int64
	Chat       int64
	React      int64
	Voice      int64
	MeanGap    float64
	GapSamples int64
	At         time.Time
}
