package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBucketStore is a contracts.BucketStore backed by Redis, letting the
// rate-limit counter be shared across multiple gateway instances (spec.md
// §1 — "shared across worker instances via a single-writer actor"). Each
// gateway process still serializes its own increments through one Actor;
// Redis serializes across processes via INCR.
type RedisBucketStore struct {
	client *redis.Client
}

// NewRedisBucketStore connects to the Redis instance at addr.
func NewRedisBucketStore(addr string) (*RedisBucketStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	return &RedisBucketStore{client: redis.NewClient(opts)}, nil
}

// Increment implements contracts.BucketStore via an atomic INCR, with the
// key's TTL set to 2*windowLen on each call so it self-expires.
func (s *RedisBucketStore) Increment(ctx context.Context, identity string, windowStart time.Time, windowLen time.Duration) (int, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", identity, windowStart.UnixMilli())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*windowLen)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: redis increment: %w", err)
	}
	return int(incr.Val()), nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisBucketStore) Close() error {
	return s.client.Close()
}
