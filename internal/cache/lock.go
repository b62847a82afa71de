package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lease stored under a Redis key.
type Lock struct {
	key   string
	token string
}

// AcquireLock takes key for ttl. Without a Redis client the lock is local
// only and always granted, which suits single-instance deployments.
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	l := &Lock{key: key, token: uuid.NewString()}
	if client == nil {
		return l, nil
	}
	ok, err := client.SetNX(ctx, key, l.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return l, nil
}

// Release frees the lock if it is still owned by this holder.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || client == nil {
		return nil
	}
	return releaseScript.Run(ctx, client, []string{l.key}, l.token).Err()
}

// Token identifies the holder.
func (l *Lock) Token() string {
	return l.token
}
