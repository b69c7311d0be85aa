package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-access/internal/audit"
)

type captureSink struct {
	entries []audit.Entry
	err     error
}

func (s *captureSink) Insert(ctx context.Context, entry audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestAuditRecordRoundTrip(t *testing.T) {
	entry := audit.Entry{
		ID:            "e1",
		Event:         audit.EventUpdated,
		AuditableType: "group",
		AuditableID:   3,
		OldValues:     map[string]any{"members": []any{"Alice", "Bob"}},
		NewValues:     map[string]any{"members": []any{"Alice"}},
		UserID:        7,
		Tags:          []string{"groups", "membership"},
	}
	task, err := NewAuditRecordTask(entry)
	require.NoError(t, err)
	require.Equal(t, TaskTypeAuditRecord, task.Type())

	sink := &captureSink{}
	handler := NewAuditRecordHandler(sink, slog.Default())
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, sink.entries, 1)
	require.Equal(t, "e1", sink.entries[0].ID)
	require.Equal(t, entry.OldValues, sink.entries[0].OldValues)
}

func TestAuditRecordHandlerSkipsMalformedPayload(t *testing.T) {
	sink := &captureSink{}
	handler := NewAuditRecordHandler(sink, slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskTypeAuditRecord, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, sink.entries)
}

func TestAuditRecordHandlerPropagatesSinkError(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	handler := NewAuditRecordHandler(sink, slog.Default())
	task, err := NewAuditRecordTask(audit.Entry{ID: "e2", Event: audit.EventCreated, AuditableType: "role"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
}

type captureWarmer struct {
	limits []int
}

func (wm *captureWarmer) WarmPermissions(ctx context.Context, limit int) error {
	wm.limits = append(wm.limits, limit)
	return nil
}

func TestPermissionWarmupHandler(t *testing.T) {
	task, err := NewPermissionWarmupTask(50)
	require.NoError(t, err)

	warmer := &captureWarmer{}
	handler := NewPermissionWarmupHandler(warmer, slog.Default())
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int{50}, warmer.limits)
}
