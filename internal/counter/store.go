// Package counter holds the in-process per-guild activity accumulators
// consumed once per minute by the index engine.
package counter

import (
	"sync"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// NoGapSentinel is the mean-gap value reported when a minute produced no gap
// samples. Large enough that the speed bonus never applies.
const NoGapSentinel = 999.0

// Store accumulates raw chat, reaction, and voice signals per guild. It is
// safe for concurrent use: the event feed writes while the scheduler reads.
type Store struct {
	mu     sync.Mutex
	guilds map[int64]*counters
	gapCap time.Duration
}

type counters struct {
	chat        int64
	react       int64
	gapSum      float64
	gapSamples  int64
	lastMessage time.Time
	voice       map[int64]struct{}
}

// New returns an empty Store. gapCap bounds the influence of a single long
// silence on the mean inter-message gap.
func New(gapCap time.Duration) *Store {
	if gapCap <= 0 {
		gapCap = 120 * time.Second
	}
	return &Store{guilds: make(map[int64]*counters), gapCap: gapCap}
}

func (s *Store) guild(guildID int64) *counters {
	c, ok := s.guilds[guildID]
	if !ok {
		c = &counters{voice: make(map[int64]struct{})}
		s.guilds[guildID] = c
	}
	return c
}

// RecordMessage counts one chat message at the given time. The gap to the
// previous message in the same guild is clamped to [0, gapCap] before being
// folded into the running mean.
func (s *Store) RecordMessage(guildID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.guild(guildID)
	c.chat++
	if !c.lastMessage.IsZero() {
		gap := at.Sub(c.lastMessage).Seconds()
		if gap < 0 {
			gap = 0
		}
		if limit := s.gapCap.Seconds(); gap > limit {
			gap = limit
		}
		c.gapSum += gap
		c.gapSamples++
	}
	c.lastMessage = at
}

// RecordReaction counts one reaction add.
func (s *Store) RecordReaction(guildID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).react++
}

// RecordVoice applies one voice-state transition. The voice count is the set
// of concurrently connected members, not an event counter, so membership
// survives snapshot resets.
func (s *Store) RecordVoice(guildID, memberID int64, joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.guild(guildID)
	if joined {
		c.voice[memberID] = struct{}{}
	} else {
		delete(c.voice, memberID)
	}
}

// SnapshotAndReset returns the guild's counters for the elapsed minute and
// zeroes them. The voice set and the last-message timestamp persist so gaps
// and concurrency carry across minutes.
func (s *Store) SnapshotAndReset(guildID int64, at time.Time) domain.ActivitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.guild(guildID)
	snap := domain.ActivitySnapshot{
		GuildID:    guildID,
		Chat:       c.chat,
		React:      c.react,
		Voice:      int64(len(c.voice)),
		MeanGap:    NoGapSentinel,
		GapSamples: c.gapSamples,
		At:         at,
	}
	if c.gapSamples > 0 {
		snap.MeanGap = c.gapSum / float64(c.gapSamples)
	}

	c.chat = 0
	c.react = 0
	c.gapSum = 0
	c.gapSamples = 0
	return snap
}

// Guilds lists the guilds the store has seen activity for.
func (s *Store) Guilds() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.guilds))
	for id := range s.guilds {
		out = append(out, id)
	}
	return out
}
