package feed

import (
	"context"
	"sync"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Roster is the feed's view of guild membership, maintained from member
// events. It answers the abandoned-auction question: has the seller left?
type Roster struct {
	mu      sync.RWMutex
	members map[int64]map[int64]struct{}
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[int64]map[int64]struct{})}
}

// SetMember records one membership transition.
func (r *Roster) SetMember(guildID, userID int64, present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.members[guildID]
	if !ok {
		if !present {
			return
		}
		g = make(map[int64]struct{})
		r.members[guildID] = g
	}
	if present {
		g[userID] = struct{}{}
	} else {
		delete(g, userID)
	}
}

// IsMember reports whether the user is known to be in the guild. A guild the
// feed has never seen members for reports true: treating an unknown user as
// present errs toward returning auction items instead of discarding them.
func (r *Roster) IsMember(ctx context.Context, guildID, userID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.members[guildID]
	if !ok {
		return true, nil
	}
	_, present := g[userID]
	return present, nil
}

// Compile-time interface check.
var _ domain.GuildRoster = (*Roster)(nil)
