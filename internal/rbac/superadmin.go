package rbac

import (
	"context"
	"sync"
)

// SuperAdminLookup resolves and memoises the Super Admin role id through an
// explicit object rather than a hidden static, so the dependency stays
// visible and resettable between tests.
type SuperAdminLookup struct {
	mu     sync.Mutex
	id     int64
	loaded bool
	load   func(ctx context.Context) (int64, error)
}

// NewSuperAdminLookup wraps the loader, typically Repository.SuperAdminRoleID.
func NewSuperAdminLookup(load func(ctx context.Context) (int64, error)) *SuperAdminLookup {
	return &SuperAdminLookup{load: load}
}

// RoleID returns the Super Admin role id, loading it on first use.
func (l *SuperAdminLookup) RoleID(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.id, nil
	}
	id, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	l.id = id
	l.loaded = true
	return id, nil
}

// Reset clears the memoised id, e.g. after reseeding roles.
func (l *SuperAdminLookup) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.id = 0
}

// FilterRoleIDs strips the Super Admin role from ids. The drop is silent:
// keeping Super Admin off groups is an invariant, not a validation failure.
func (l *SuperAdminLookup) FilterRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	superID, err := l.RoleID(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == superID {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered, nil
}
