// Package jobs defines the background task types and the queue worker.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-access/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord is the task type for persisting audit entries.
	TaskTypeAuditRecord = "audit:record"
	// TaskTypePermissionWarmup is the task type for pre-computing permission
	// cache entries for active users.
	TaskTypePermissionWarmup = "permissions:warmup"
)

// NewAuditRecordTask constructs an Asynq task carrying one audit entry.
func NewAuditRecordTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// AuditSink persists audit entries delivered by the queue.
type AuditSink interface {
	Insert(ctx context.Context, entry audit.Entry) error
}

// NewAuditRecordHandler returns the handler for TaskTypeAuditRecord tasks.
// Malformed payloads are dropped rather than retried; insert failures are
// retried by the queue, relying on the sink's idempotent writes.
func NewAuditRecordHandler(sink AuditSink, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry audit.Entry
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			logger.Error("audit task payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		return sink.Insert(ctx, entry)
	}
}

// PermissionWarmupPayload selects which users to warm.
type PermissionWarmupPayload struct {
	Limit int `json:"limit"`
}

// NewPermissionWarmupTask constructs a warmup task.
func NewPermissionWarmupTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionWarmupPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePermissionWarmup, data), nil
}

// PermissionWarmer loads permissions into cache for the given users.
type PermissionWarmer interface {
	WarmPermissions(ctx context.Context, limit int) error
}

// NewPermissionWarmupHandler returns the handler for warmup tasks.
func NewPermissionWarmupHandler(warmer PermissionWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PermissionWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("warmup task payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		return warmer.WarmPermissions(ctx, payload.Limit)
	}
}

// Client submits jobs to the queue. It implements audit.Enqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueAuditRecord enqueues an audit entry for persistence.
func (c *Client) EnqueueAuditRecord(ctx context.Context, entry audit.Entry) error {
	task, err := NewAuditRecordTask(entry)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
