package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-access/internal/shared"
)

// Enqueuer submits an entry to the background queue. Implemented by the jobs
// client.
type Enqueuer interface {
	EnqueueAuditRecord(ctx context.Context, entry Entry) error
}

// QueueRecorder dispatches entries to the job queue. Enqueue failures are
// logged and swallowed: losing an audit record is acceptable, failing the
// committed mutation that produced it is not.
type QueueRecorder struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewQueueRecorder constructs a QueueRecorder.
func NewQueueRecorder(enqueuer Enqueuer, logger *slog.Logger) *QueueRecorder {
	return &QueueRecorder{enqueuer: enqueuer, logger: logger}
}

// Record stamps the entry with id, actor metadata and time, then enqueues it.
func (r *QueueRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if actor := shared.ActorFromContext(ctx); actor != (shared.Actor{}) {
		if entry.UserID == 0 {
			entry.UserID = actor.UserID
		}
		if entry.URL == "" {
			entry.URL = actor.URL
		}
		if entry.IP == "" {
			entry.IP = actor.IP
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	if err := r.enqueuer.EnqueueAuditRecord(ctx, entry); err != nil {
		r.logger.Warn("audit enqueue failed",
			slog.String("event", entry.Event),
			slog.String("auditable_type", entry.AuditableType),
			slog.Int64("auditable_id", entry.AuditableID),
			slog.Any("error", err))
	}
	return nil
}
