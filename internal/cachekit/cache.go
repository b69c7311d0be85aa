// Package cachekit defines the cache port behind which derived permission
// data lives. Adapters expose get/set/delete plus tag-based bulk
// invalidation; callers that receive ErrTagsUnsupported must fall back to
// plain per-key operations.
package cachekit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss indicates the key is absent or expired.
	ErrMiss = errors.New("cachekit: miss")
	// ErrTagsUnsupported indicates the underlying driver cannot track tags.
	ErrTagsUnsupported = errors.New("cachekit: tags unsupported")
)

// Store is the cache port injected into services.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key with the given TTL. When tags are supplied
	// the key is additionally registered under each tag so InvalidateTag can
	// drop it later. Drivers without tag support return ErrTagsUnsupported
	// for tagged sets.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidateTag drops every key registered under tag.
	InvalidateTag(ctx context.Context, tag string) error
}
