package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/meridian-erp/meridian-access/internal/platform/db"
)

// Relation names a many-to-many join table by its columns. All relations are
// compile-time constants; the table and column names are never user input.
type Relation struct {
	Table      string
	OwnerCol   string
	RelatedCol string
}

// Join tables managed through SyncManyToMany.
var (
	RelGroupRoles       = Relation{Table: "group_role", OwnerCol: "group_id", RelatedCol: "role_id"}
	RelGroupPermissions = Relation{Table: "group_permission", OwnerCol: "group_id", RelatedCol: "permission_id"}
	RelUserRoles        = Relation{Table: "user_role", OwnerCol: "user_id", RelatedCol: "role_id"}
	RelRolePermissions  = Relation{Table: "role_permission", OwnerCol: "role_id", RelatedCol: "permission_id"}
)

// SyncManyToMany replaces the related-id set for owner with desired and
// returns the ids actually added and removed, both sorted. Writes go straight
// at the join table in two bulk statements.
func SyncManyToMany(ctx context.Context, q db.Querier, rel Relation, ownerID int64, desired []int64) (added, removed []int64, err error) {
	current, err := relatedIDs(ctx, q, rel, ownerID)
	if err != nil {
		return nil, nil, err
	}
	added, removed = diffIDs(current, desired)

	if len(added) > 0 {
		query := fmt.Sprintf(
			`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
			rel.Table, rel.OwnerCol, rel.RelatedCol)
		if _, err := q.Exec(ctx, query, ownerID, added); err != nil {
			return nil, nil, fmt.Errorf("rbac: sync insert %s: %w", rel.Table, err)
		}
	}
	if len(removed) > 0 {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)`,
			rel.Table, rel.OwnerCol, rel.RelatedCol)
		if _, err := q.Exec(ctx, query, ownerID, removed); err != nil {
			return nil, nil, fmt.Errorf("rbac: sync delete %s: %w", rel.Table, err)
		}
	}
	return added, removed, nil
}

func relatedIDs(ctx context.Context, q db.Querier, rel Relation, ownerID int64) ([]int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, rel.RelatedCol, rel.Table, rel.OwnerCol)
	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list %s: %w", rel.Table, err)
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

// diffIDs computes the sorted set differences desired-current (added) and
// current-desired (removed). Duplicates in either input collapse.
func diffIDs(current, desired []int64) (added, removed []int64) {
	currentSet := make(map[int64]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[int64]struct{}, len(desired))
	for _, id := range desired {
		if _, seen := desiredSet[id]; seen {
			continue
		}
		desiredSet[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return dedupeSorted(added), dedupeSorted(removed)
}

func dedupeSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
