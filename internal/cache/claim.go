package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer takes exclusive, expiring claims on keys. The first writer of a
// key wins until the key expires.
type Claimer struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewClaimer(rdb redis.UniversalClient, timeout time.Duration) *Claimer {
	return &Claimer{rdb: rdb, timeout: timeout}
}

// Claim sets key with SET NX EX ttl and reports whether this caller won.
func (c *Claimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ok, err := c.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (c *Claimer) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
