// Package counter implements the shared counting collaborator: per-caller
// rate limiting and rolling download tallies.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"molt-mart/internal/mart"
)

const defaultRedisURL = "redis://localhost:6379"

// RedisCounter implements mart.Counter on Redis. Rate limiting uses a fixed
// window keyed on the truncated wall clock; download tallies are plain
// counters with a rolling TTL.
type RedisCounter struct {
	client *redis.Client
	clock  mart.Clock
}

var _ mart.Counter = (*RedisCounter)(nil)

// NewRedisCounter constructs a Redis-backed counter and verifies the
// connection. A nil clock falls back to the real clock.
func NewRedisCounter(url string, clock mart.Clock) (*RedisCounter, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if clock == nil {
		clock = mart.RealClock{}
	}
	return &RedisCounter{client: client, clock: clock}, nil
}

// Allow records one request from key and reports whether the caller is still
// under limit for the current window.
func (c *RedisCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	bucket := rateKey(key, c.clock.Now(), window)

	pipe := c.client.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	// Expire a little past the window so a bucket read near the boundary
	// still resolves.
	pipe.Expire(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	return count.Val() <= int64(limit), nil
}

// IncrDownloads bumps the rolling download tally for an artifact.
func (c *RedisCounter) IncrDownloads(ctx context.Context, artifactID string) (int64, error) {
	pipe := c.client.TxPipeline()
	count := pipe.Incr(ctx, downloadsKey(artifactID))
	pipe.Expire(ctx, downloadsKey(artifactID), 30*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("downloads incr: %w", err)
	}
	return count.Val(), nil
}

// Close shuts down the Redis client.
func (c *RedisCounter) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func rateKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("rate:%s:%d", key, now.Truncate(window).Unix())
}

func downloadsKey(artifactID string) string {
	return "downloads:" + artifactID
}
