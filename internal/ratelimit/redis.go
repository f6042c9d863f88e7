package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares rate-limit windows across replicas. INCR plus a window
// expiry on the first hit gives per-key atomicity without scripts; counts can
// briefly exceed max under bursts, which is acceptable for abuse damping.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Take(ctx context.Context, subjectID string, _ int, window time.Duration) (int, time.Time, error) {
	key := "ratelimit:subject:" + subjectID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit window: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("set rate limit window expiry: %w", err)
		}
		return int(count), time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read rate limit window expiry: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. restored from a dump); reestablish it.
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("reset rate limit window expiry: %w", err)
		}
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
