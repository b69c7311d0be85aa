package groups

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

// TxStore is the membership data surface available inside a transaction.
// Bulk writes go straight at the group_user join table.
type TxStore interface {
	GetGroup(ctx context.Context, id int64) (Group, error)
	CountMembers(ctx context.Context, groupID int64) (int, error)
	MemberRoster(ctx context.Context, groupID int64) ([]Member, error)
	// MembersAmong reports which of userIDs are currently members.
	MembersAmong(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error)
	// UserNames resolves user ids to display names; absent ids are omitted.
	UserNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
	InsertMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error)
	DeleteMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// Store is the persistence port of the membership service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	GetGroup(ctx context.Context, id int64) (Group, error)
	GetGroupBySlug(ctx context.Context, slug string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, name, slug, description string) (Group, error)
	UpdateGroup(ctx context.Context, id int64, name, slug, description string) (Group, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

// GetGroup fetches a group by id.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	return getGroup(ctx, r.pool, id)
}

// GetGroupBySlug fetches a group by slug.
func (r *Repository) GetGroupBySlug(ctx context.Context, slug string) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM groups WHERE slug = $1`, slug).
		Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("groups: get by slug: %w", err)
	}
	return g, nil
}

// ListGroups returns all groups ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("groups: list: %w", err)
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateGroup inserts a new group.
func (r *Repository) CreateGroup(ctx context.Context, name, slug, description string) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx,
		`INSERT INTO groups (name, slug, description) VALUES ($1, $2, $3)
		 RETURNING id, name, slug, description, created_at, updated_at`,
		name, slug, description).
		Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if isUniqueViolation(err) {
		return Group{}, ErrGroupExists
	}
	if err != nil {
		return Group{}, fmt.Errorf("groups: create: %w", err)
	}
	return g, nil
}

// UpdateGroup updates name, slug and description.
func (r *Repository) UpdateGroup(ctx context.Context, id int64, name, slug, description string) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx,
		`UPDATE groups SET name = $2, slug = $3, description = $4, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, slug, description, created_at, updated_at`,
		id, name, slug, description).
		Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return Group{}, ErrGroupExists
	}
	if err != nil {
		return Group{}, fmt.Errorf("groups: update: %w", err)
	}
	return g, nil
}

// txStore implements TxStore over a pgx transaction.
type txStore struct {
	q db.Querier
}

func (t *txStore) GetGroup(ctx context.Context, id int64) (Group, error) {
	return getGroup(ctx, t.q, id)
}

func (t *txStore) CountMembers(ctx context.Context, groupID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM group_user WHERE group_id = $1`, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("groups: count members: %w", err)
	}
	return count, nil
}

func (t *txStore) MemberRoster(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := t.q.Query(ctx, `
		SELECT u.id, u.name
		FROM group_user gu
		JOIN users u ON u.id = gu.user_id
		WHERE gu.group_id = $1
		ORDER BY u.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("groups: member roster: %w", err)
	}
	defer rows.Close()
	var roster []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		roster = append(roster, m)
	}
	return roster, rows.Err()
}

func (t *txStore) MembersAmong(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error) {
	rows, err := t.q.Query(ctx,
		`SELECT user_id FROM group_user WHERE group_id = $1 AND user_id = ANY($2)`,
		groupID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("groups: members among: %w", err)
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

func (t *txStore) UserNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, name FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("groups: user names: %w", err)
	}
	defer rows.Close()
	names := make(map[int64]string, len(userIDs))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (t *txStore) InsertMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`INSERT INTO group_user (group_id, user_id)
		 SELECT $1, unnest($2::bigint[])
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userIDs)
	if err != nil {
		return 0, fmt.Errorf("groups: insert members: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txStore) DeleteMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`DELETE FROM group_user WHERE group_id = $1 AND user_id = ANY($2)`,
		groupID, userIDs)
	if err != nil {
		return 0, fmt.Errorf("groups: delete members: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txStore) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM group_role WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("groups: delete group roles: %w", err)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM group_permission WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("groups: delete group permissions: %w", err)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("groups: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func getGroup(ctx context.Context, q db.Querier, id int64) (Group, error) {
	var g Group
	err := q.QueryRow(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("groups: get: %w", err)
	}
	return g, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
