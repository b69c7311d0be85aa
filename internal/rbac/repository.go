package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-access/internal/platform/db"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

// ErrRoleExists indicates a role name collision.
var ErrRoleExists = errors.New("rbac: a role with that name already exists")

// Repository provides PostgreSQL backed persistence for roles, permissions
// and their join tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING id, name, description, created_at, updated_at`,
		name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if isUniqueViolation(err) {
		return Role{}, ErrRoleExists
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, description, created_at, updated_at`,
		id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return Role{}, ErrRoleExists
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	return role, nil
}

// DeleteRole removes a role and its join rows.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permission WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete role permissions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_role WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete user roles: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM group_role WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete group roles: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("rbac: delete role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RelatedIDs lists the current related-id set for owner.
func (r *Repository) RelatedIDs(ctx context.Context, rel Relation, ownerID int64) ([]int64, error) {
	return relatedIDs(ctx, r.pool, rel, ownerID)
}

// ReplaceRelated swaps the related set for owner inside one transaction and
// returns the ids added and removed.
func (r *Repository) ReplaceRelated(ctx context.Context, rel Relation, ownerID int64, desired []int64) (added, removed []int64, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		added, removed, err = SyncManyToMany(ctx, tx, rel, ownerID, desired)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

// RoleNames resolves ids to sorted role names.
func (r *Repository) RoleNames(ctx context.Context, ids []int64) ([]string, error) {
	return r.namesByIDs(ctx, "roles", ids)
}

// PermissionNames resolves ids to sorted permission names.
func (r *Repository) PermissionNames(ctx context.Context, ids []int64) ([]string, error) {
	return r.namesByIDs(ctx, "permissions", ids)
}

func (r *Repository) namesByIDs(ctx context.Context, table string, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	query := fmt.Sprintf(`SELECT name FROM %s WHERE id = ANY($1) ORDER BY name`, table)
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("rbac: names from %s: %w", table, err)
	}
	defer rows.Close()
	names := make([]string, 0, len(ids))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EffectivePermissions computes the deduplicated permission names a user
// holds via direct roles, group roles and group ad-hoc grants.
func (r *Repository) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		WHERE p.id IN (
			SELECT rp.permission_id
			FROM role_permission rp
			WHERE rp.role_id IN (
				SELECT ur.role_id FROM user_role ur WHERE ur.user_id = $1
				UNION
				SELECT gr.role_id
				FROM group_role gr
				JOIN group_user gu ON gu.group_id = gr.group_id
				WHERE gu.user_id = $1
			)
			UNION
			SELECT gp.permission_id
			FROM group_permission gp
			JOIN group_user gu ON gu.group_id = gp.group_id
			WHERE gu.user_id = $1
		)
		ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// UsersWithRole returns every user holding the role directly or through a
// group, sorted by id.
func (r *Repository) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM (
			SELECT ur.user_id FROM user_role ur WHERE ur.role_id = $1
			UNION
			SELECT gu.user_id
			FROM group_user gu
			JOIN group_role gr ON gr.group_id = gu.group_id
			WHERE gr.role_id = $1
		) affected
		ORDER BY user_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: users with role: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GroupExists reports whether the group row is present.
func (r *Repository) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("rbac: group exists: %w", err)
	}
	return exists, nil
}

// GroupMemberIDs returns the sorted member ids of a group.
func (r *Repository) GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_user WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("rbac: group members: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveUserIDs returns up to limit active user ids, most recently updated
// first. Feeds the permission cache warmup sweep.
func (r *Repository) ActiveUserIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM users WHERE is_active ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("rbac: active users: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SuperAdminRoleID resolves the protected role's id.
func (r *Repository) SuperAdminRoleID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, SuperAdminRoleName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("rbac: super admin role missing: %w", shared.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("rbac: super admin role id: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
