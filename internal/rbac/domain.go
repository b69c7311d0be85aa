package rbac

import "time"

// SuperAdminRoleName is the protected role. It can never be attached to a
// group, renamed, or deleted.
const SuperAdminRoleName = "Super Admin"

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability. Names follow the
// module.resource.action convention used for display grouping.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// SyncResult summarises a replace-set operation.
type SyncResult struct {
	Added   int
	Removed int
}

// Changed reports whether the sync touched any rows.
func (r SyncResult) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}
