package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-access/internal/shared"
)

type captureEnqueuer struct {
	entries []Entry
	err     error
}

func (c *captureEnqueuer) EnqueueAuditRecord(ctx context.Context, entry Entry) error {
	c.entries = append(c.entries, entry)
	return c.err
}

func TestQueueRecorderStampsEntry(t *testing.T) {
	enq := &captureEnqueuer{}
	rec := NewQueueRecorder(enq, slog.Default())

	ctx := shared.ContextWithActor(context.Background(), shared.Actor{
		UserID:    42,
		URL:       "/admin/groups/7/members",
		IP:        "10.1.2.3",
		UserAgent: "curl/8.0",
	})

	err := rec.Record(ctx, Entry{
		Event:         EventUpdated,
		AuditableType: "group",
		AuditableID:   7,
		NewValues:     map[string]any{"members": []string{"Ada"}},
	})
	require.NoError(t, err)
	require.Len(t, enq.entries, 1)

	got := enq.entries[0]
	require.NotEmpty(t, got.ID)
	require.False(t, got.CreatedAt.IsZero())
	require.Equal(t, int64(42), got.UserID)
	require.Equal(t, "/admin/groups/7/members", got.URL)
	require.Equal(t, "10.1.2.3", got.IP)
	require.Equal(t, "curl/8.0", got.UserAgent)
}

func TestQueueRecorderSwallowsEnqueueFailure(t *testing.T) {
	enq := &captureEnqueuer{err: errors.New("redis down")}
	rec := NewQueueRecorder(enq, slog.Default())

	err := rec.Record(context.Background(), Entry{
		Event:         EventDeleted,
		AuditableType: "role",
		AuditableID:   3,
	})
	require.NoError(t, err)
}
