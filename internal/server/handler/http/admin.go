package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/models"
	"github.com/atinyakov/smartstamp/internal/service"
	"github.com/go-chi/chi/v5"
)

// AdminService defines the management operations required by AdminHandler.
type AdminService interface {
	CalibrateStamp(ctx context.Context, name string, points []fingerprint.Point, description *string) (*models.Stamp, error)
	ListStamps(ctx context.Context, skip, limit int) ([]models.Stamp, error)
	GetStamp(ctx context.Context, id string) (*models.Stamp, error)
	DeleteStamp(ctx context.Context, id string) error

	CreateClient(ctx context.Context, name string) (*models.Client, error)
	ListClients(ctx context.Context, skip, limit int) ([]models.Client, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ToggleClient(ctx context.Context, id string) (*models.Client, error)

	GrantPermission(ctx context.Context, clientID, stampID string) (*models.Permission, error)
	ListPermissions(ctx context.Context, clientID, stampID string) ([]models.Permission, error)
	RevokePermission(ctx context.Context, id string) error
}

// AdminHandler serves the /admin API.
type AdminHandler struct {
	AdminService AdminService
}

// CalibrateRequest is the JSON payload for enrolling a stamp.
type CalibrateRequest struct {
	Name        string      `json:"name"`
	Points      [][]float64 `json:"points"`
	Description *string     `json:"description"`
}

// CreateClientRequest is the JSON payload for registering an API client.
type CreateClientRequest struct {
	Name string `json:"name"`
}

// GrantPermissionRequest is the JSON payload for binding a client to a stamp.
type GrantPermissionRequest struct {
	ClientID string `json:"client_id"`
	StampID  string `json:"stamp_id"`
}

// CalibrateStamp handles POST /admin/stamps/calibrate.
func (h *AdminHandler) CalibrateStamp(w http.ResponseWriter, r *http.Request) {
	var req CalibrateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	points := make([]fingerprint.Point, 0, len(req.Points))
	for _, p := range req.Points {
		if len(p) != 2 {
			http.Error(w, "each point must be an [x, y] pair", http.StatusBadRequest)
			return
		}
		points = append(points, fingerprint.Point{X: p[0], Y: p[1]})
	}

	stamp, err := h.AdminService.CalibrateStamp(r.Context(), req.Name, points, req.Description)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stamp)
}

// ListStamps handles GET /admin/stamps?skip=&limit=.
func (h *AdminHandler) ListStamps(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := paging(w, r)
	if !ok {
		return
	}
	stamps, err := h.AdminService.ListStamps(r.Context(), skip, limit)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stamps)
}

// GetStamp handles GET /admin/stamps/{id}.
func (h *AdminHandler) GetStamp(w http.ResponseWriter, r *http.Request) {
	stamp, err := h.AdminService.GetStamp(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stamp)
}

// DeleteStamp handles DELETE /admin/stamps/{id}.
func (h *AdminHandler) DeleteStamp(w http.ResponseWriter, r *http.Request) {
	if err := h.AdminService.DeleteStamp(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateClient handles POST /admin/clients. The response is the only place
// the generated API key is shown besides the client listing.
func (h *AdminHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	client, err := h.AdminService.CreateClient(r.Context(), req.Name)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

// ListClients handles GET /admin/clients?skip=&limit=.
func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := paging(w, r)
	if !ok {
		return
	}
	clients, err := h.AdminService.ListClients(r.Context(), skip, limit)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// GetClient handles GET /admin/clients/{id}.
func (h *AdminHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.AdminService.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// ToggleClient handles PUT /admin/clients/{id}/toggle.
func (h *AdminHandler) ToggleClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.AdminService.ToggleClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GrantPermission handles POST /admin/permissions.
func (h *AdminHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	var req GrantPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	perm, err := h.AdminService.GrantPermission(r.Context(), req.ClientID, req.StampID)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

// ListPermissions handles GET /admin/permissions?client_id=&stamp_id=.
func (h *AdminHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perms, err := h.AdminService.ListPermissions(r.Context(), q.Get("client_id"), q.Get("stamp_id"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// RevokePermission handles DELETE /admin/permissions/{id}.
func (h *AdminHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.AdminService.RevokePermission(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fingerprint.ErrInvalidInput), errors.Is(err, service.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrAlreadyExists):
		http.Error(w, "permission already exists", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// paging reads skip and limit query parameters. Missing values are passed
// as zero and normalized by the service.
func paging(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	var skip, limit int
	for _, p := range []struct {
		name string
		dst  *int
	}{{"skip", &skip}, {"limit", &limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid "+p.name, http.StatusBadRequest)
			return 0, 0, false
		}
		*p.dst = v
	}
	return skip, limit, true
}
