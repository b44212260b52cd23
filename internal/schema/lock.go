package schema

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrUpdateInProgress is returned when another process holds the update lock.
var ErrUpdateInProgress = errors.New("entity/field definition updates are already being applied")

const (
	defaultLockKey = "lock:entity_definition_updates"
	defaultLockTTL = 5 * time.Minute
)

// RedisLock serialises definition updates across service replicas.
type RedisLock struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{Client: client, Key: defaultLockKey, TTL: defaultLockTTL}
}

// Lock takes the lock for owner. It reports false if someone else holds it.
func (l *RedisLock) Lock(ctx context.Context, owner string) (bool, error) {
	return l.Client.SetNX(ctx, l.Key, owner, l.TTL).Result()
}

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock if owner still holds it. Releasing an expired or
// foreign lock is a no-op.
func (l *RedisLock) Unlock(ctx context.Context, owner string) error {
	return unlockScript.Run(ctx, l.Client, []string{l.Key}, owner).Err()
}
