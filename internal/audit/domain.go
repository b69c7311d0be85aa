// Package audit records immutable before/after snapshots of administrative
// changes. Entries are queued fire-and-forget: the mutation that produced
// them is authoritative and never waits on the audit write.
package audit

import (
	"context"
	"time"
)

// Entry is one append-only audit record.
type Entry struct {
	ID            string         `json:"id"`
	Event         string         `json:"event"`
	AuditableType string         `json:"auditable_type"`
	AuditableID   int64          `json:"auditable_id"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	UserID        int64          `json:"user_id"`
	URL           string         `json:"url,omitempty"`
	IP            string         `json:"ip,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Events recorded by the access-control services.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Recorder accepts entries for asynchronous persistence.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}
