package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

// ErrSuperAdminProtected rejects rename or deletion of the Super Admin role.
var ErrSuperAdminProtected = errors.New("rbac: the Super Admin role cannot be renamed or deleted")

// Store defines the persistence surface the service needs.
type Store interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	RelatedIDs(ctx context.Context, rel Relation, ownerID int64) ([]int64, error)
	ReplaceRelated(ctx context.Context, rel Relation, ownerID int64, desired []int64) (added, removed []int64, err error)
	RoleNames(ctx context.Context, ids []int64) ([]string, error)
	PermissionNames(ctx context.Context, ids []int64) ([]string, error)

	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	SuperAdminRoleID(ctx context.Context) (int64, error)
}

// Service orchestrates role and permission management with audit trails and
// cache coherence.
type Service struct {
	store      Store
	cache      *PermissionCache
	recorder   audit.Recorder
	superAdmin *SuperAdminLookup
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, cache *PermissionCache, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		recorder:   recorder,
		superAdmin: NewSuperAdminLookup(store.SuperAdminRoleID),
		logger:     logger,
	}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// CreateRole inserts a new role and records the creation.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.store.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventCreated,
		AuditableType: "role",
		AuditableID:   role.ID,
		NewValues:     map[string]any{"name": role.Name, "description": role.Description},
		Tags:          []string{"rbac"},
	})
	return role, nil
}

// UpdateRole renames a role. The Super Admin role is immutable.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	current, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.Name == SuperAdminRoleName {
		return Role{}, ErrSuperAdminProtected
	}
	role, err := s.store.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventUpdated,
		AuditableType: "role",
		AuditableID:   role.ID,
		OldValues:     map[string]any{"name": current.Name, "description": current.Description},
		NewValues:     map[string]any{"name": role.Name, "description": role.Description},
		Tags:          []string{"rbac"},
	})
	return role, nil
}

// DeleteRole removes a role. The Super Admin role cannot be deleted. Every
// user that held the role loses it, so their cache entries are cleared.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == SuperAdminRoleName {
		return ErrSuperAdminProtected
	}
	affected, err := s.store.UsersWithRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventDeleted,
		AuditableType: "role",
		AuditableID:   id,
		OldValues:     map[string]any{"name": role.Name, "description": role.Description},
		Tags:          []string{"rbac"},
	})
	s.invalidateUsers(ctx, affected)
	return nil
}

// SetGroupRoles replaces a group's base role set. The Super Admin role is
// silently filtered from the request. Every current member's cached
// permissions are invalidated; with no members the broad tag still clears.
func (s *Service) SetGroupRoles(ctx context.Context, groupID int64, roleIDs []int64) (SyncResult, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return SyncResult{}, err
	}
	filtered, err := s.superAdmin.FilterRoleIDs(ctx, roleIDs)
	if err != nil {
		return SyncResult{}, err
	}
	return s.replaceAudited(ctx, relationChange{
		rel:           RelGroupRoles,
		ownerID:       groupID,
		desired:       filtered,
		auditableType: "group",
		valueKey:      "roles",
		names:         s.store.RoleNames,
		affected: func(ctx context.Context) ([]int64, error) {
			return s.store.GroupMemberIDs(ctx, groupID)
		},
		invalidate: func(ctx context.Context, users []int64) {
			s.invalidateGroup(ctx, groupID, users)
		},
	})
}

// SetGroupPermissions replaces a group's ad-hoc permission grants.
func (s *Service) SetGroupPermissions(ctx context.Context, groupID int64, permissionIDs []int64) (SyncResult, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return SyncResult{}, err
	}
	return s.replaceAudited(ctx, relationChange{
		rel:           RelGroupPermissions,
		ownerID:       groupID,
		desired:       permissionIDs,
		auditableType: "group",
		valueKey:      "permissions",
		names:         s.store.PermissionNames,
		affected: func(ctx context.Context) ([]int64, error) {
			return s.store.GroupMemberIDs(ctx, groupID)
		},
		invalidate: func(ctx context.Context, users []int64) {
			s.invalidateGroup(ctx, groupID, users)
		},
	})
}

// SetUserRoles replaces a user's direct role set.
func (s *Service) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) (SyncResult, error) {
	return s.replaceAudited(ctx, relationChange{
		rel:           RelUserRoles,
		ownerID:       userID,
		desired:       roleIDs,
		auditableType: "user",
		valueKey:      "roles",
		names:         s.store.RoleNames,
		affected: func(ctx context.Context) ([]int64, error) {
			return []int64{userID}, nil
		},
	})
}

// SetRolePermissions replaces a role's permission set. Everyone holding the
// role, directly or via a group, gets their cache cleared.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (SyncResult, error) {
	return s.replaceAudited(ctx, relationChange{
		rel:           RelRolePermissions,
		ownerID:       roleID,
		desired:       permissionIDs,
		auditableType: "role",
		valueKey:      "permissions",
		names:         s.store.PermissionNames,
		affected: func(ctx context.Context) ([]int64, error) {
			return s.store.UsersWithRole(ctx, roleID)
		},
	})
}

// EffectivePermissions returns the user's cached permission set, computing it
// on a miss.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.cache.Effective(ctx, userID, func(ctx context.Context) ([]string, error) {
		return s.store.EffectivePermissions(ctx, userID)
	})
}

// HasPermission checks a single permission name against the cached set.
func (s *Service) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

// relationChange describes one audited replace-set operation.
type relationChange struct {
	rel           Relation
	ownerID       int64
	desired       []int64
	auditableType string
	valueKey      string
	names         func(ctx context.Context, ids []int64) ([]string, error)
	affected      func(ctx context.Context) ([]int64, error)
	invalidate    func(ctx context.Context, users []int64)
}

func (s *Service) replaceAudited(ctx context.Context, change relationChange) (SyncResult, error) {
	beforeIDs, err := s.store.RelatedIDs(ctx, change.rel, change.ownerID)
	if err != nil {
		return SyncResult{}, err
	}
	beforeNames, err := change.names(ctx, beforeIDs)
	if err != nil {
		return SyncResult{}, err
	}
	added, removed, err := s.store.ReplaceRelated(ctx, change.rel, change.ownerID, change.desired)
	if err != nil {
		return SyncResult{}, err
	}
	result := SyncResult{Added: len(added), Removed: len(removed)}
	if !result.Changed() {
		return result, nil
	}
	afterIDs, err := s.store.RelatedIDs(ctx, change.rel, change.ownerID)
	if err != nil {
		return result, err
	}
	afterNames, err := change.names(ctx, afterIDs)
	if err != nil {
		return result, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventUpdated,
		AuditableType: change.auditableType,
		AuditableID:   change.ownerID,
		OldValues:     map[string]any{change.valueKey: beforeNames},
		NewValues:     map[string]any{change.valueKey: afterNames},
		Tags:          []string{"rbac"},
	})
	affected, err := change.affected(ctx)
	if err != nil {
		s.logger.Warn("resolve affected users failed",
			slog.String("relation", change.rel.Table), slog.Any("error", err))
		affected = nil
	}
	if change.invalidate != nil {
		change.invalidate(ctx, affected)
	} else {
		s.invalidateUsers(ctx, affected)
	}
	return result, nil
}

// ensureGroup aborts the sync before any write when the target group does
// not exist, so callers surface a not-found instead of a constraint error.
func (s *Service) ensureGroup(ctx context.Context, groupID int64) error {
	ok, err := s.store.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rbac: group %d: %w", groupID, shared.ErrNotFound)
	}
	return nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("event", entry.Event), slog.Any("error", err))
	}
}

func (s *Service) invalidateUsers(ctx context.Context, userIDs []int64) {
	if err := s.cache.InvalidateUsers(ctx, userIDs); err != nil {
		s.logger.Warn("permission cache invalidation failed",
			slog.Int("users", len(userIDs)), slog.Any("error", err))
	}
}

func (s *Service) invalidateGroup(ctx context.Context, groupID int64, memberIDs []int64) {
	if err := s.cache.InvalidateGroup(ctx, groupID, memberIDs); err != nil {
		s.logger.Warn("group cache invalidation failed",
			slog.Int64("group_id", groupID), slog.Any("error", err))
	}
}

// ResetSuperAdminLookup clears the memoised Super Admin role id.
func (s *Service) ResetSuperAdminLookup() {
	s.superAdmin.Reset()
}
