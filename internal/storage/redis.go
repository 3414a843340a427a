package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps objects as JSON strings in Redis under a bucket prefix.
// It is the hosted backend; documents are small (schedules, state, config)
// and read on every dispatch, which suits a key/value store.
type RedisStore struct {
	client redis.UniversalClient
	bucket string
	logger *slog.Logger
}

// NewRedisStore connects to the Redis instance at url and namespaces all
// keys under bucket.
func NewRedisStore(url, bucket string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &RedisStore{
		client: redis.NewClient(opts),
		bucket: bucket,
		logger: logger,
	}, nil
}

// Ping verifies connectivity to the Redis instance.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) redisKey(key string) string {
	return s.bucket + ":" + key
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, key string, out any) error {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// Write implements Store. Objects never expire; schedule freshness is
// governed by the planner's cache policy, not by TTLs.
func (s *RedisStore) Write(ctx context.Context, key string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", key, err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return "", fmt.Errorf("write %q: %w", key, err)
	}

	location := fmt.Sprintf("redis://%s/%s", s.bucket, key)
	s.logger.Debug("object written", "key", key, "location", location, "bytes", len(data))
	return location, nil
}
