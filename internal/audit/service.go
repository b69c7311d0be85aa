package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineRow is one entry shaped for review listings.
type TimelineRow struct {
	ID            string
	At            time.Time
	Event         string
	AuditableType string
	AuditableID   int64
	UserID        int64
	OldValues     map[string]any
	NewValues     map[string]any
	Tags          []string
}

// TimelineFilters narrows the timeline query.
type TimelineFilters struct {
	From          time.Time
	To            time.Time
	Event         string
	AuditableType string
	UserID        int64
	Page          int
	PageSize      int
}

// PagingInfo carries paging state for the timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	NextPage int
	PrevPage int
}

// Result bundles timeline rows with paging info.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Repository provides the timeline window query.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches a page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect whether a next page exists.
	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
