package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounters is the shared CounterStore for multi-instance deployments.
// A window is an INCR'd key whose TTL is set on the first hit, so every
// instance sees the same windowStart; blocks are plain keys with a TTL.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (r *RedisCounters) IncrWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return int(count), nil
}

func (r *RedisCounters) AddDistinct(ctx context.Context, key, member string, window time.Duration) (int, error) {
	added, err := r.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return 0, fmt.Errorf("sadd %s: %w", key, err)
	}

	if added > 0 {
		// arm the window on first membership only, never extend it
		if err := r.client.ExpireNX(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	card, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}

	return int(card), nil
}

func (r *RedisCounters) Block(ctx context.Context, key string, d time.Duration) error {
	if err := r.client.Set(ctx, key, "1", d).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCounters) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisCounters) WindowRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// -1 no expiry, -2 no key
		return 0, nil
	}
	return ttl, nil
}
