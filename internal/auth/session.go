// Package auth verifies credentials and tracks opaque sessions in redis.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore keeps session tokens in redis with a sliding TTL. The token
// is the only thing handed to clients; the user id stays server-side.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Create issues a fresh opaque token for the user.
func (s *SessionStore) Create(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	err := s.rdb.Set(ctx, sessionKeyPrefix+token, strconv.FormatInt(userID, 10), s.ttl).Err()
	if err != nil {
		return "", fmt.Errorf("auth: create session: %w", err)
	}
	return token, nil
}

// Resolve returns the user id behind a token, refreshing its TTL. Unknown or
// expired tokens return ErrSessionExpired.
func (s *SessionStore) Resolve(ctx context.Context, token string) (int64, error) {
	raw, err := s.rdb.GetEx(ctx, sessionKeyPrefix+token, s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionExpired
	}
	if err != nil {
		return 0, fmt.Errorf("auth: resolve session: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: corrupt session value: %w", err)
	}
	return userID, nil
}

// Destroy drops the token. Destroying an unknown token is not an error.
func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("auth: destroy session: %w", err)
	}
	return nil
}

// ErrSessionExpired indicates a missing or timed-out session token.
var ErrSessionExpired = errors.New("auth: session expired")
