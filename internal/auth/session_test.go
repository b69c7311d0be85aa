package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-access/internal/shared"
	"github.com/meridian-erp/meridian-access/internal/users"
)

func newTestSessions(t *testing.T, ttl time.Duration) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSessionStore(rdb, ttl), mr
}

type staticFinder struct {
	byEmail map[string]users.User
	byID    map[int64]users.User
}

func (f *staticFinder) FindByEmail(ctx context.Context, email string) (users.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *staticFinder) GetUser(ctx context.Context, id int64) (users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func newStaticFinder(t *testing.T, active bool) *staticFinder {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	u := users.User{ID: 7, Name: "Alice", Email: "alice@example.com", PasswordHash: string(hash), IsActive: active}
	return &staticFinder{
		byEmail: map[string]users.User{u.Email: u},
		byID:    map[int64]users.User{u.ID: u},
	}
}

func TestSessionLifecycle(t *testing.T) {
	sessions, mr := newTestSessions(t, time.Hour)
	ctx := context.Background()

	token, err := sessions.Create(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), userID)

	mr.FastForward(2 * time.Hour)
	_, err = sessions.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestResolveRefreshesTTL(t *testing.T) {
	sessions, mr := newTestSessions(t, time.Hour)
	ctx := context.Background()

	token, err := sessions.Create(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(50 * time.Minute)
	_, err = sessions.Resolve(ctx, token)
	require.NoError(t, err)

	// Another 50 minutes would have expired the original TTL.
	mr.FastForward(50 * time.Minute)
	_, err = sessions.Resolve(ctx, token)
	require.NoError(t, err)
}

func TestDestroySession(t *testing.T) {
	sessions, _ := newTestSessions(t, time.Hour)
	ctx := context.Background()

	token, err := sessions.Create(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, sessions.Destroy(ctx, token))
	_, err = sessions.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, sessions.Destroy(ctx, "unknown"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	sessions, _ := newTestSessions(t, time.Hour)
	svc := NewService(newStaticFinder(t, true), sessions)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	token, user, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)

	resolved, err := svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	sessions, _ := newTestSessions(t, time.Hour)
	svc := NewService(newStaticFinder(t, false), sessions)

	_, _, err := svc.Login(context.Background(), "alice@example.com", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
