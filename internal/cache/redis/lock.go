package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// unlockLua is a Lua script that deletes a lock key only if its value matches
// the caller's unique token. This prevents one holder from accidentally
// releasing another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Locker implements domain.Locker using Redis SETNX with a TTL and a
// Lua-based conditional unlock.
type Locker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLocker creates a Locker backed by the given Client.
func NewLocker(c *Client) *Locker {
	return &Locker{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(name string) string {
	return key("lock", name)
}

// Acquire attempts to obtain a distributed lock for the given key with the
// specified TTL. On success it returns a handle whose Release must be called
// to free the lock; Release is safe to call more than once.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.LockHandle, error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	return &lockHandle{locker: l, key: lk, token: token}, nil
}

type lockHandle struct {
	locker   *Locker
	key      string
	token    string
	released bool
}

// Release frees the lock if this handle still owns it.
func (h *lockHandle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true

	if err := h.locker.unlockSc.Run(ctx, h.locker.rdb, []string{h.key}, h.token).Err(); err != nil {
		return fmt.Errorf("redis: release lock %s: %w", h.key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Locker = (*Locker)(nil)
