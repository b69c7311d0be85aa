package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs for timeline queries.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns entries matching filters, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, "created_at >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, "created_at <= "+arg(filters.To))
	}
	if filters.Event != "" {
		conditions = append(conditions, "event = "+arg(filters.Event))
	}
	if filters.AuditableType != "" {
		conditions = append(conditions, "auditable_type = "+arg(filters.AuditableType))
	}
	if filters.UserID != 0 {
		conditions = append(conditions, "user_id = "+arg(filters.UserID))
	}
	query := `SELECT id, created_at, event, auditable_type, auditable_id, COALESCE(user_id, 0), old_values, new_values, tags FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC OFFSET " + arg(offset) + " LIMIT " + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row     TimelineRow
			oldJSON []byte
			newJSON []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.Event, &row.AuditableType, &row.AuditableID, &row.UserID, &oldJSON, &newJSON, &row.Tags); err != nil {
			return nil, fmt.Errorf("audit: scan timeline row: %w", err)
		}
		if len(oldJSON) > 0 {
			_ = json.Unmarshal(oldJSON, &row.OldValues)
		}
		if len(newJSON) > 0 {
			_ = json.Unmarshal(newJSON, &row.NewValues)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
