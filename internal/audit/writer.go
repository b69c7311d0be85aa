package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-access/internal/platform/db"
)

// Writer persists entries into audit_logs. It runs inside the queue worker,
// never on the request path.
type Writer struct {
	q db.Querier
}

// NewWriter returns a new Writer.
func NewWriter(q db.Querier) *Writer {
	return &Writer{q: q}
}

// Insert appends the entry. Re-delivery of the same entry id is a no-op so
// the queue's at-least-once semantics never duplicate records.
func (w *Writer) Insert(ctx context.Context, entry Entry) error {
	if w == nil || w.q == nil {
		return errors.New("audit: writer not initialised")
	}
	if entry.Event == "" || entry.AuditableType == "" {
		return errors.New("audit: entry requires event and auditable type")
	}
	oldJSON, err := json.Marshal(entry.OldValues)
	if err != nil {
		return fmt.Errorf("audit: marshal old values: %w", err)
	}
	newJSON, err := json.Marshal(entry.NewValues)
	if err != nil {
		return fmt.Errorf("audit: marshal new values: %w", err)
	}
	tags := entry.Tags
	if tags == nil {
		// The tags column is NOT NULL; a nil slice would bind as NULL.
		tags = []string{}
	}
	_, err = w.q.Exec(ctx, `
		INSERT INTO audit_logs (id, event, auditable_type, auditable_id, old_values, new_values, user_id, url, ip, user_agent, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Event, entry.AuditableType, entry.AuditableID,
		oldJSON, newJSON, entry.UserID, entry.URL, entry.IP, entry.UserAgent,
		tags, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
