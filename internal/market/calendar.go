// Package market implements the index engine: the per-minute update rule,
// instrument pricing, the trading calendar, and index alerts.
package market

import (
	"fmt"
	"time"
)

// Calendar answers trading-window and trading-day questions in the market's
// fixed civil timezone.
type Calendar struct {
	loc      *time.Location
	openMin  int // minutes since midnight, inclusive
	closeMin int // minutes since midnight, exclusive
}

// NewCalendar builds a Calendar from a timezone name and HH:MM open/close
// clock times.
func NewCalendar(timezone, openTime, closeTime string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("market: load timezone %q: %w", timezone, err)
	}
	open, err := parseClock(openTime)
	if err != nil {
		return nil, fmt.Errorf("market: parse open_time %q: %w", openTime, err)
	}
	close_, err := parseClock(closeTime)
	if err != nil {
		return nil, fmt.Errorf("market: parse close_time %q: %w", closeTime, err)
	}
	if open >= close_ {
		return nil, fmt.Errorf("market: open %q must precede close %q", openTime, closeTime)
	}
	return &Calendar{loc: loc, openMin: open, closeMin: close_}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Day returns the trading day (YYYY-MM-DD) the instant falls on.
func (c *Calendar) Day(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// IsOpen reports whether the instant is inside the trading window. The open
// edge is inclusive and the close edge exclusive, so a 09:00–21:00 window
// runs through 20:59:59.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.loc)
	m := lt.Hour()*60 + lt.Minute()
	return m >= c.openMin && m < c.closeMin
}

// Minute truncates the instant to its unix minute, the key of tick rows.
func (c *Calendar) Minute(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix()
}
