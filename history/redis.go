package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisStore is a Redis-backed transcript store. Each session is a list of
// JSON-encoded exchanges with TTL-based cleanup, suitable for deployments
// where sessions outlive one process.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the transcript time-to-live, refreshed on every append.
// Default is 24 hours. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the Redis key prefix. Default is "voicerag".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed transcript store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "voicerag",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Append implements Store. The RPUSH and TTL refresh run in one pipeline
// round-trip.
func (s *RedisStore) Append(ctx context.Context, sessionID string, ex Exchange) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	key := s.transcriptKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	key := s.transcriptKey(sessionID)
	items, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Exchange, 0, len(items))
	for _, item := range items {
		var ex Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exchange: %w", err)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if err := s.client.Del(ctx, s.transcriptKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (s *RedisStore) transcriptKey(sessionID string) string {
	return fmt.Sprintf("%s:transcript:%s", s.prefix, sessionID)
}
