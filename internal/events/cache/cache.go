package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-events/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "event:"

	// DefaultTombstoneTTL bounds how long after Delete a read-through Set for
	// the same event is refused.
	DefaultTombstoneTTL = 5 * time.Second
)

// Redis is a read-through cache for loaded events. Entries are dropped on
// save and delete, and a short tombstone stops a Load that read the row
// before the write from caching the old copy.
type Redis struct {
	Client       *redis.Client
	TTL          time.Duration
	TombstoneTTL time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{Client: client, TTL: ttl, TombstoneTTL: DefaultTombstoneTTL}
}

func key(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}

func tombstoneKey(id int64) string {
	return key(id) + ":stale"
}

// setScript stores ARGV[1] under KEYS[1] unless the tombstone KEYS[2] exists.
// ARGV[2] is the TTL in milliseconds; 0 means no expiry.
var setScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// Get returns the cached event, or false on a miss.
func (r *Redis) Get(ctx context.Context, id int64) (*models.Event, bool, error) {
	raw, err := r.Client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		// A corrupt entry is treated as a miss and removed.
		r.Client.Del(ctx, key(id))
		return nil, false, nil
	}
	return &event, true, nil
}

// Set caches event unless it was invalidated within the tombstone window.
func (r *Redis) Set(ctx context.Context, event *models.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	keys := []string{key(event.ID), tombstoneKey(event.ID)}
	return setScript.Run(ctx, r.Client, keys, raw, r.TTL.Milliseconds()).Err()
}

// Delete evicts the event and leaves a tombstone so in-flight loads do not
// repopulate it.
func (r *Redis) Delete(ctx context.Context, id int64) error {
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key(id))
		if r.TombstoneTTL > 0 {
			pipe.Set(ctx, tombstoneKey(id), 1, r.TombstoneTTL)
		}
		return nil
	})
	return err
}
