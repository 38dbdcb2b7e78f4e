package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/predictfi/predict-go/internal/domain"
)

// unlockScript deletes the lock key only when it still holds the caller's
// token, so an expired-and-reacquired lock is never released by the old
// holder.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SET NX + TTL. The indexer
// uses it to guarantee a single writer per chain.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager builds a LockManager over the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		unlock: redis.NewScript(unlockScript),
	}
}

// Acquire takes the named lock for at most ttl and returns a release
// function, or domain.ErrLockHeld when another holder has it. The release
// function may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	fullKey := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var released bool
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context is often already cancelled during shutdown,
		// so release under a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlock.Run(rctx, lm.rdb, []string{fullKey}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
