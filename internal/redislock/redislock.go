// Package redislock is a single-holder Redis lock: SET NX PX to acquire and
// a compare-and-delete script to release.
package redislock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "competeiq:lock:"

// ErrNotAcquired is returned by WithLock when the lock stayed taken.
var ErrNotAcquired = errors.New("lock not acquired")

var errEmpty = errors.New("lock key or token is empty")

type Client struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Client {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

func (c *Client) Key(name string) string {
	return c.prefix + strings.TrimSpace(name)
}

// Token returns a fresh holder token.
func Token() string {
	return uuid.NewString()
}

func (c *Client) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if key == "" || token == "" {
		return false, errEmpty
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Release deletes the lock only if token still holds it.
func (c *Client) Release(ctx context.Context, key, token string) (bool, error) {
	if key == "" || token == "" {
		return false, errEmpty
	}
	n, err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// WithLock runs fn while holding the named lock. It retries acquisition
// every 50ms until wait elapses.
func (c *Client) WithLock(ctx context.Context, name string, ttl, wait time.Duration, fn func(ctx context.Context) error) error {
	key := c.Key(name)
	token := Token()
	deadline := time.Now().Add(wait)

	for {
		ok, err := c.Acquire(ctx, key, token, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		// Release even when ctx is already cancelled.
		_, _ = c.Release(context.WithoutCancel(ctx), key, token)
	}()
	return fn(ctx)
}
