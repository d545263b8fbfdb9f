package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idem:"

type redisValue struct {
	Processing bool     `json:"processing"`
	Response   Response `json:"response"`
}

// RedisStore shares idempotency state across instances. Placeholder and
// response both expire via the Redis key TTL, so no sweep is needed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps the provided client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Begin implements Store.
func (s *RedisStore) Begin(ctx context.Context, key string) (BeginResult, error) {
	placeholder, err := json.Marshal(redisValue{Processing: true})
	if err != nil {
		return BeginResult{}, fmt.Errorf("marshal placeholder: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		set, err := s.client.SetNX(ctx, redisKeyPrefix+key, placeholder, s.ttl).Result()
		if err != nil {
			return BeginResult{}, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if set {
			return BeginResult{State: StateStarted}, nil
		}

		raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
		if err == redis.Nil {
			// Expired between SetNX and Get; claim again.
			continue
		}
		if err != nil {
			return BeginResult{}, fmt.Errorf("redis get %s: %w", key, err)
		}

		var value redisValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return BeginResult{}, fmt.Errorf("decode idempotency value %s: %w", key, err)
		}
		if value.Processing {
			return BeginResult{State: StateInFlight}, nil
		}
		resp := value.Response
		return BeginResult{State: StateReplay, Response: &resp}, nil
	}

	return BeginResult{State: StateInFlight}, nil
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	payload, err := json.Marshal(redisValue{Response: resp})
	if err != nil {
		return fmt.Errorf("marshal idempotency response: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Abort implements Store.
func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
