package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimelineRepo struct {
	rows    []TimelineRow
	offset  int
	limit   int
	filters TimelineFilters
}

func (f *fakeTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	f.filters = filters
	f.offset = offset
	f.limit = limit
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:            string(rune('a' + i)),
			At:            base.Add(-time.Duration(i) * time.Minute),
			Event:         EventUpdated,
			AuditableType: "group",
			AuditableID:   int64(i + 1),
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &fakeTimelineRepo{rows: makeRows(25)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Zero(t, res.Paging.PrevPage)
	require.Equal(t, 21, repo.limit)

	res, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 1, res.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeTimelineRepo{rows: makeRows(3)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, res.Paging.PageSize)
	require.Equal(t, 1, res.Paging.Page)
	require.Len(t, res.Rows, 3)
}
