package domain

import "time"

// Alert event names carried on the Event field.
const (
	EventSpikeUp   = "index_spike_up"
	EventSpikeDown = "index_spike_down"
	EventNewHigh   = "index_new_high"
)

// Alert is one market notification: the event name plus the numbers a
// channel needs to render it. Value, Open, and ChangePct are zero for
// non-index events such as operational errors.
type Alert struct {
	GuildID   int64
	Event     string
	Category  Category
	Title     string
	Message   string
	Value     float64 // current index value
	Open      float64 // today's opening value
	ChangePct float64 // realized move this tick, in percent
	At        time.Time
}
