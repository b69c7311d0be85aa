package cachekit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tagSetPrefix = "cachetag:"

// RedisStore implements Store on top of a redis client. Tag membership is
// tracked in redis sets keyed by tagSetPrefix so a tag can be invalidated
// with a single SMEMBERS + DEL round trip.
type RedisStore struct {
	client      *redis.Client
	disableTags bool
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithoutTags disables tag tracking, for deployments where set commands are
// unavailable (e.g. certain proxies). Tagged operations then report
// ErrTagsUnsupported and callers fall back to per-key deletes.
func WithoutTags() RedisOption {
	return func(s *RedisStore) { s.disableTags = true }
}

// NewRedisStore wraps client as a Store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches a raw value, returning ErrMiss when absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cachekit: get %s: %w", key, err)
	}
	return payload, nil
}

// Set stores the value and registers it under the supplied tags.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if len(tags) > 0 && s.disableTags {
		return ErrTagsUnsupported
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagSetPrefix+tag, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cachekit: set %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cachekit: delete: %w", err)
	}
	return nil
}

// InvalidateTag drops every key registered under tag along with the tag set.
func (s *RedisStore) InvalidateTag(ctx context.Context, tag string) error {
	if s.disableTags {
		return ErrTagsUnsupported
	}
	setKey := tagSetPrefix + tag
	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("cachekit: tag members %s: %w", tag, err)
	}
	keys := append(members, setKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cachekit: invalidate tag %s: %w", tag, err)
	}
	return nil
}
