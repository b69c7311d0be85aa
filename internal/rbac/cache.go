package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-access/internal/cachekit"
)

// TagPermissions groups every cached permission entry. Clearing the tag is
// the broad safety net used when the set of affected users is unknown or
// empty.
const TagPermissions = "permissions"

func userPermKey(userID int64) string { return fmt.Sprintf("perm:user:%d", userID) }
func userMenuKey(userID int64) string { return fmt.Sprintf("menu:user:%d", userID) }
func groupPermKey(groupID int64) string { return fmt.Sprintf("perm:group:%d", groupID) }

// PermissionCache is the single choke point for permission cache reads and
// invalidation. Entries are cleared, never updated in place; recomputation
// happens lazily on the next read.
type PermissionCache struct {
	store     cachekit.Store
	ttl       time.Duration
	chunkSize int
	logger    *slog.Logger
	flight    singleflight.Group
}

// NewPermissionCache constructs a PermissionCache. chunkSize bounds how many
// keys a single delete round trip carries.
func NewPermissionCache(store cachekit.Store, ttl time.Duration, chunkSize int, logger *slog.Logger) *PermissionCache {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &PermissionCache{store: store, ttl: ttl, chunkSize: chunkSize, logger: logger}
}

// Effective returns the cached permission set for userID, computing it via
// loader on a miss. Concurrent misses for the same user collapse to one load.
func (c *PermissionCache) Effective(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	key := userPermKey(userID)
	payload, err := c.store.Get(ctx, key)
	if err == nil {
		var perms []string
		if err := json.Unmarshal(payload, &perms); err == nil {
			return perms, nil
		}
		// Unreadable entry: drop it and recompute.
		_ = c.store.Delete(ctx, key)
	} else if !errors.Is(err, cachekit.ErrMiss) {
		c.logger.Warn("permission cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	value, err, _ := c.flight.Do(key, func() (any, error) {
		perms, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(perms)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, raw, c.ttl, TagPermissions); err != nil {
			if errors.Is(err, cachekit.ErrTagsUnsupported) {
				err = c.store.Set(ctx, key, raw, c.ttl)
			}
			if err != nil {
				c.logger.Warn("permission cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// InvalidateUsers clears the permission and menu entries for every affected
// user, then clears the broad permissions tag. The tag is cleared even for an
// empty user set.
func (c *PermissionCache) InvalidateUsers(ctx context.Context, userIDs []int64) error {
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, userPermKey(id), userMenuKey(id))
	}
	for start := 0; start < len(keys); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.store.Delete(ctx, keys[start:end]...); err != nil {
			return err
		}
	}
	if err := c.store.InvalidateTag(ctx, TagPermissions); err != nil && !errors.Is(err, cachekit.ErrTagsUnsupported) {
		return err
	}
	return nil
}

// InvalidateGroup clears the group's derived permission entry plus every
// member's per-user entries.
func (c *PermissionCache) InvalidateGroup(ctx context.Context, groupID int64, memberIDs []int64) error {
	if err := c.store.Delete(ctx, groupPermKey(groupID)); err != nil {
		return err
	}
	return c.InvalidateUsers(ctx, memberIDs)
}
