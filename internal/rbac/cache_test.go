package rbac

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-access/internal/cachekit"
)

func newRedisPermCache(t *testing.T, opts ...cachekit.RedisOption) *PermissionCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPermissionCache(cachekit.NewRedisStore(client, opts...), time.Minute, 100, slog.Default())
}

func TestPermissionCacheReadThrough(t *testing.T) {
	cache := newRedisPermCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) ([]string, error) {
		loads++
		return []string{"groups.view", "users.view"}, nil
	}

	perms, err := cache.Effective(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, []string{"groups.view", "users.view"}, perms)
	require.Equal(t, 1, loads)

	perms, err = cache.Effective(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, []string{"groups.view", "users.view"}, perms)
	require.Equal(t, 1, loads, "second read must hit the cache")
}

func TestInvalidateUsersForcesMiss(t *testing.T) {
	cache := newRedisPermCache(t)
	ctx := context.Background()

	loads := map[int64]int{}
	loaderFor := func(id int64) func(context.Context) ([]string, error) {
		return func(ctx context.Context) ([]string, error) {
			loads[id]++
			return []string{"x"}, nil
		}
	}

	_, err := cache.Effective(ctx, 1, loaderFor(1))
	require.NoError(t, err)
	_, err = cache.Effective(ctx, 2, loaderFor(2))
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateUsers(ctx, []int64{1}))

	_, err = cache.Effective(ctx, 1, loaderFor(1))
	require.NoError(t, err)
	require.Equal(t, 2, loads[1], "invalidated user must recompute")

	// The broad tag clear also dropped user 2; coarse by design.
	_, err = cache.Effective(ctx, 2, loaderFor(2))
	require.NoError(t, err)
	require.Equal(t, 2, loads[2])
}

func TestInvalidateUsersClearsDerivedKeys(t *testing.T) {
	cache := newRedisPermCache(t)
	ctx := context.Background()

	require.NoError(t, cache.store.Set(ctx, userMenuKey(4), []byte("menu"), time.Minute))
	require.NoError(t, cache.store.Set(ctx, groupPermKey(9), []byte("group"), time.Minute))

	require.NoError(t, cache.InvalidateGroup(ctx, 9, []int64{4}))

	_, err := cache.store.Get(ctx, userMenuKey(4))
	require.ErrorIs(t, err, cachekit.ErrMiss)
	_, err = cache.store.Get(ctx, groupPermKey(9))
	require.ErrorIs(t, err, cachekit.ErrMiss)
}

func TestPermissionCacheTagFallback(t *testing.T) {
	cache := newRedisPermCache(t, cachekit.WithoutTags())
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) ([]string, error) {
		loads++
		return []string{"groups.view"}, nil
	}

	// Tagged set fails with ErrTagsUnsupported; the cache retries untagged.
	_, err := cache.Effective(ctx, 3, loader)
	require.NoError(t, err)
	_, err = cache.Effective(ctx, 3, loader)
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	// Invalidation degrades to per-key deletes without error.
	require.NoError(t, cache.InvalidateUsers(ctx, []int64{3}))
	_, err = cache.Effective(ctx, 3, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestInvalidateUsersChunksDeletes(t *testing.T) {
	store := cachekit.NewMemoryStore()
	cache := NewPermissionCache(store, time.Minute, 3, slog.Default())
	ctx := context.Background()

	ids := make([]int64, 10)
	for i := range ids {
		ids[i] = int64(i + 1)
		require.NoError(t, store.Set(ctx, userPermKey(ids[i]), []byte("v"), time.Minute))
	}

	require.NoError(t, cache.InvalidateUsers(ctx, ids))
	for _, id := range ids {
		_, err := store.Get(ctx, userPermKey(id))
		require.ErrorIs(t, err, cachekit.ErrMiss)
	}
}
