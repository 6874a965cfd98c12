package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript increments the key and starts its expiry on the first hit.
// Returns {count, pttl_ms}.
var reserveScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Reservation is the outcome of a window reservation
type Reservation struct {
	Allowed    bool
	RetryAfter time.Duration // time until the window closes
}

// RedisCounter reserves one slot per key per window with an atomic
// increment-with-expiry.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "portalguard"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Key builds a namespaced counter key
func (c *RedisCounter) Key(parts ...string) string {
	key := c.prefix + ":gate"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Reserve claims the window for key. Only the first caller inside a window
// is allowed; concurrent callers observe the count already taken.
func (c *RedisCounter) Reserve(ctx context.Context, key string, window time.Duration) (Reservation, error) {
	if c.client == nil {
		return Reservation{}, errors.New("redis client is nil")
	}
	if window <= 0 {
		return Reservation{Allowed: true}, nil
	}

	raw, err := reserveScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve %s: %w", key, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Reservation{}, fmt.Errorf("unexpected reserve result %T", raw)
	}

	count, ok1 := values[0].(int64)
	ttlMS, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return Reservation{}, fmt.Errorf("unexpected reserve result types %T, %T", values[0], values[1])
	}

	return Reservation{
		Allowed:    count == 1,
		RetryAfter: time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

// Release frees the window for key so the next attempt is allowed
func (c *RedisCounter) Release(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

// Shorten sets the remaining lifetime of an open window to ttl
func (c *RedisCounter) Shorten(ctx context.Context, key string, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	if ttl <= 0 {
		return c.Release(ctx, key)
	}
	if err := c.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to shorten %s: %w", key, err)
	}
	return nil
}
