package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-access/internal/platform/httpx"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

type timelineRowResponse struct {
	ID            string         `json:"id"`
	At            time.Time      `json:"at"`
	Event         string         `json:"event"`
	AuditableType string         `json:"auditable_type"`
	AuditableID   int64          `json:"auditable_id"`
	UserID        int64          `json:"user_id,omitempty"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

type pagingResponse struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	NextPage int  `json:"next_page,omitempty"`
	PrevPage int  `json:"prev_page,omitempty"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, ok := parseTimelineFilters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]timelineRowResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		rows = append(rows, timelineRowResponse{
			ID:            row.ID,
			At:            row.At,
			Event:         row.Event,
			AuditableType: row.AuditableType,
			AuditableID:   row.AuditableID,
			UserID:        row.UserID,
			OldValues:     row.OldValues,
			NewValues:     row.NewValues,
			Tags:          row.Tags,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": rows,
		"paging": pagingResponse{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
			NextPage: result.Paging.NextPage,
			PrevPage: result.Paging.PrevPage,
		},
	})
}

func parseTimelineFilters(w http.ResponseWriter, r *http.Request) (TimelineFilters, bool) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Event:         q.Get("event"),
		AuditableType: q.Get("auditable_type"),
	}
	for name, target := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be RFC3339")
				return TimelineFilters{}, false
			}
			*target = t
		}
	}
	for name, target := range map[string]*int{"page": &filters.Page, "page_size": &filters.PageSize} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a positive integer")
				return TimelineFilters{}, false
			}
			*target = n
		}
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id must be a positive integer")
			return TimelineFilters{}, false
		}
		filters.UserID = id
	}
	return filters, true
}
