package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type captureQuerier struct {
	args []any
	err  error
}

func (c *captureQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.args = args
	return pgconn.CommandTag{}, c.err
}

func (c *captureQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *captureQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestWriterNormalisesNilTags(t *testing.T) {
	q := &captureQuerier{}
	w := NewWriter(q)

	err := w.Insert(context.Background(), Entry{
		ID:            "b7e2c9f0-0000-0000-0000-000000000001",
		Event:         EventUpdated,
		AuditableType: "group",
		AuditableID:   3,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, q.args, 12)

	// The tags column is NOT NULL, so a tag-less entry must bind an empty
	// slice rather than NULL.
	tags, ok := q.args[10].([]string)
	require.True(t, ok, "tags argument must stay a []string")
	require.NotNil(t, tags)
	require.Empty(t, tags)
}

func TestWriterKeepsProvidedTags(t *testing.T) {
	q := &captureQuerier{}
	w := NewWriter(q)

	err := w.Insert(context.Background(), Entry{
		ID:            "b7e2c9f0-0000-0000-0000-000000000002",
		Event:         EventCreated,
		AuditableType: "group",
		AuditableID:   4,
		Tags:          []string{"groups", "membership"},
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"groups", "membership"}, q.args[10])
}

func TestWriterRejectsIncompleteEntry(t *testing.T) {
	w := NewWriter(&captureQuerier{})
	err := w.Insert(context.Background(), Entry{ID: "x"})
	require.Error(t, err)
}
