package rbac

import (
	"context"
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

// Handler exposes role, permission and assignment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoleRoutes registers role CRUD and role-permission assignment.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/{id}", h.getRole)
	r.Put("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
	r.Put("/{id}/permissions", h.setRolePermissions)
}

// MountPermissionRoutes registers the permission catalogue.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

// MountGroupRoutes registers group role/permission assignment, mounted
// under the groups subtree.
func (h *Handler) MountGroupRoutes(r chi.Router) {
	r.Put("/{id}/roles", h.setGroupRoles)
	r.Put("/{id}/permissions", h.setGroupPermissions)
}

// MountUserRoutes registers user role assignment and effective permission
// lookups, mounted under the users subtree.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Put("/{id}/roles", h.setUserRoles)
	r.Get("/{id}/permissions", h.effectivePermissions)
}

type rolePayload struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type idsPayload struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type syncResponse struct {
	Added   int  `json:"added"`
	Removed int  `json:"removed"`
	Changed bool `json:"changed"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, payload.Name, payload.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.service.SetRolePermissions)
}

func (h *Handler) setGroupRoles(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.service.SetGroupRoles)
}

func (h *Handler) setGroupPermissions(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.service.SetGroupPermissions)
}

func (h *Handler) setUserRoles(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.service.SetUserRoles)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, []int64) (SyncResult, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload idsPayload
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := fn(r.Context(), id, payload.IDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, syncResponse{Added: res.Added, Removed: res.Removed, Changed: res.Changed()})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
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

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRoleExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrSuperAdminProtected):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}
