package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-access/internal/platform/httpx"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

// Handler exposes group and membership endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/members", h.listMembers)
	r.Post("/{id}/members", h.addMembers)
	r.Delete("/{id}/members", h.removeMembers)
	r.Post("/{id}/members/transfer", h.transferMembers)
}

type groupPayload struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type memberIDsPayload struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

type transferPayload struct {
	TargetGroupID int64   `json:"target_group_id" validate:"required,gt=0"`
	UserIDs       []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

type groupResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type memberResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type membershipResponse struct {
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Skipped int    `json:"skipped"`
	Message string `json:"message"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload groupPayload
	if !h.decode(w, r, &payload) {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGroupResponse(group))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload groupPayload
	if !h.decode(w, r, &payload) {
		return
	}
	group, err := h.service.UpdateGroup(r.Context(), id, payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	roster, err := h.service.Members(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]memberResponse, 0, len(roster))
	for _, m := range roster {
		out = append(out, memberResponse{ID: m.ID, Name: m.Name})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) addMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload memberIDsPayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.service.AddMembers(r.Context(), id, payload.UserIDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMembershipResponse(res))
}

func (h *Handler) removeMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload memberIDsPayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.service.RemoveMembers(r.Context(), id, payload.UserIDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMembershipResponse(res))
}

func (h *Handler) transferMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload transferPayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.service.TransferMembers(r.Context(), id, payload.TargetGroupID, payload.UserIDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMembershipResponse(res))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrGroupExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrGroupNotEmpty):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("groups handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toGroupResponse(g Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Slug:        g.Slug,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toMembershipResponse(res MembershipResult) membershipResponse {
	return membershipResponse{Added: res.Added, Removed: res.Removed, Skipped: res.Skipped, Message: res.Message}
}
