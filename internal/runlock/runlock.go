// Package runlock provides an optional Redis-backed mutual-exclusion lock
// so two bridge processes never run a Catalog Sync pass concurrently.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "aiod-bridge:runlock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock guards one named run so at most one process holds it at a time.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// New connects to the Redis/Valkey instance at url. name scopes the lock
// key, so different bridge deployments sharing a Redis instance don't
// contend with each other.
func New(url, name string) (*Lock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("runlock: parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("runlock: connecting to redis: %w", err)
	}

	return &Lock{client: client, key: lockKeyPrefix + name}, nil
}

// Acquire attempts to take the lock for ttl, returning false if another
// process already holds it. The holder's token is remembered so only this
// process's own Release call can clear it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release clears the lock, but only if this process still holds it (its
// token still matches) -- guards against releasing a lock a stale process
// reacquired after this one's TTL already expired.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// IsHeld reports whether the lock is currently held by anyone.
func (l *Lock) IsHeld(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection.
func (l *Lock) Close() error {
	return l.client.Close()
}
