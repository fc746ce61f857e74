package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/models"
	"github.com/atinyakov/smartstamp/internal/service"
	handler "github.com/atinyakov/smartstamp/internal/server/handler/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdminService keeps stamps, clients and permissions in memory.
type fakeAdminService struct {
	stamps  map[string]models.Stamp
	clients map[string]models.Client
	perms   map[string]models.Permission

	listSkip, listLimit int
	failWith            error
}

func newFakeAdmin() *fakeAdminService {
	return &fakeAdminService{
		stamps:  map[string]models.Stamp{"s1": {ID: "s1", Name: "Seal", Fingerprint: fingerprint.Fingerprint{1, 1, 1, 1, 1}}},
		clients: map[string]models.Client{"c1": {ID: "c1", Name: "Acme", APIKey: "sk_1", IsActive: true}},
		perms:   map[string]models.Permission{},
	}
}

func (f *fakeAdminService) CalibrateStamp(_ context.Context, name string, points []fingerprint.Point, desc *string) (*models.Stamp, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", service.ErrInvalidArgument)
	}
	fp, err := fingerprint.Extract(points)
	if err != nil {
		return nil, err
	}
	s := models.Stamp{ID: "s2", Name: name, Fingerprint: fp, Description: desc}
	f.stamps[s.ID] = s
	return &s, nil
}

func (f *fakeAdminService) ListStamps(_ context.Context, skip, limit int) ([]models.Stamp, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.listSkip, f.listLimit = skip, limit
	out := []models.Stamp{}
	for _, s := range f.stamps {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAdminService) GetStamp(_ context.Context, id string) (*models.Stamp, error) {
	s, ok := f.stamps[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &s, nil
}

func (f *fakeAdminService) DeleteStamp(_ context.Context, id string) error {
	if _, ok := f.stamps[id]; !ok {
		return service.ErrNotFound
	}
	delete(f.stamps, id)
	return nil
}

func (f *fakeAdminService) CreateClient(_ context.Context, name string) (*models.Client, error) {
	c := models.Client{ID: "c2", Name: name, APIKey: "sk_new", IsActive: true}
	f.clients[c.ID] = c
	return &c, nil
}

func (f *fakeAdminService) ListClients(context.Context, int, int) ([]models.Client, error) {
	out := []models.Client{}
	for _, c := range f.clients {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeAdminService) GetClient(_ context.Context, id string) (*models.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &c, nil
}

func (f *fakeAdminService) ToggleClient(_ context.Context, id string) (*models.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	c.IsActive = !c.IsActive
	f.clients[id] = c
	return &c, nil
}

func (f *fakeAdminService) GrantPermission(_ context.Context, clientID, stampID string) (*models.Permission, error) {
	for _, p := range f.perms {
		if p.ClientID == clientID && p.StampID == stampID && p.IsActive {
			return nil, service.ErrAlreadyExists
		}
	}
	if _, ok := f.clients[clientID]; !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, service.ErrNotFound)
	}
	p := models.Permission{ID: "p1", ClientID: clientID, StampID: stampID, IsActive: true}
	f.perms[p.ID] = p
	return &p, nil
}

func (f *fakeAdminService) ListPermissions(_ context.Context, clientID, _ string) ([]models.Permission, error) {
	out := []models.Permission{}
	for _, p := range f.perms {
		if clientID == "" || p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAdminService) RevokePermission(_ context.Context, id string) error {
	p, ok := f.perms[id]
	if !ok || !p.IsActive {
		return service.ErrNotFound
	}
	p.IsActive = false
	f.perms[id] = p
	return nil
}

const adminToken = "admin-secret"

func newAdminRouter(admin handler.AdminService) http.Handler {
	return handler.NewRouter(handler.Handlers{
		Verify: &handler.VerifyHandler{VerifyService: &fakeVerifyService{}},
		Keys:   &handler.KeysHandler{Keys: newIssuer()},
		Health: &handler.HealthHandler{},
		Admin:  &handler.AdminHandler{AdminService: admin},
	}, adminToken, zap.NewNop())
}

func adminDo(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Admin-Token", adminToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdmin_RequiresToken(t *testing.T) {
	h := newAdminRouter(newFakeAdmin())
	req := httptest.NewRequest(http.MethodGet, "/admin/stamps", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_CalibrateStamp(t *testing.T) {
	admin := newFakeAdmin()
	h := newAdminRouter(admin)

	w := adminDo(t, h, http.MethodPost, "/admin/stamps/calibrate", map[string]any{
		"name":   "Office seal",
		"points": [][]float64{{0, 0}, {40, 5}, {55, 38}, {22, 60}, {-8, 31}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got models.Stamp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Office seal", got.Name)
	assert.Len(t, got.Fingerprint, fingerprint.Size)
	assert.Nil(t, got.Description)
}

func TestAdmin_CalibrateStamp_BadInput(t *testing.T) {
	h := newAdminRouter(newFakeAdmin())

	cases := []struct {
		name string
		body any
	}{
		{"three points", map[string]any{"name": "x", "points": [][]float64{{0, 0}, {1, 1}, {2, 2}}}},
		{"bad pair", map[string]any{"name": "x", "points": [][]float64{{0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}}},
		{"missing name", map[string]any{"points": [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {2, 2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := adminDo(t, h, http.MethodPost, "/admin/stamps/calibrate", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAdmin_Stamps(t *testing.T) {
	admin := newFakeAdmin()
	h := newAdminRouter(admin)

	w := adminDo(t, h, http.MethodGet, "/admin/stamps?skip=5&limit=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, admin.listSkip)
	assert.Equal(t, 7, admin.listLimit)

	w = adminDo(t, h, http.MethodGet, "/admin/stamps?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = adminDo(t, h, http.MethodGet, "/admin/stamps/s1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = adminDo(t, h, http.MethodGet, "/admin/stamps/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminDo(t, h, http.MethodDelete, "/admin/stamps/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = adminDo(t, h, http.MethodDelete, "/admin/stamps/s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_StorageErrorIsHidden(t *testing.T) {
	admin := newFakeAdmin()
	admin.failWith = fmt.Errorf("ListStamps: pq: relation \"stamp_registry\" does not exist")
	h := newAdminRouter(admin)

	w := adminDo(t, h, http.MethodGet, "/admin/stamps", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error\n", w.Body.String())
}

func TestAdmin_Clients(t *testing.T) {
	admin := newFakeAdmin()
	h := newAdminRouter(admin)

	w := adminDo(t, h, http.MethodPost, "/admin/clients", map[string]string{"name": "Globex"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "sk_new", created.APIKey)

	w = adminDo(t, h, http.MethodGet, "/admin/clients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = adminDo(t, h, http.MethodPut, "/admin/clients/c1/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var toggled models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.False(t, toggled.IsActive)

	w = adminDo(t, h, http.MethodGet, "/admin/clients/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_Permissions(t *testing.T) {
	admin := newFakeAdmin()
	h := newAdminRouter(admin)

	grant := map[string]string{"client_id": "c1", "stamp_id": "s1"}

	w := adminDo(t, h, http.MethodPost, "/admin/permissions", grant)
	require.Equal(t, http.StatusCreated, w.Code)

	w = adminDo(t, h, http.MethodPost, "/admin/permissions", grant)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = adminDo(t, h, http.MethodPost, "/admin/permissions", map[string]string{"client_id": "cX", "stamp_id": "s1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminDo(t, h, http.MethodGet, "/admin/permissions?client_id=c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perms []models.Permission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &perms))
	assert.Len(t, perms, 1)

	w = adminDo(t, h, http.MethodDelete, "/admin/permissions/p1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = adminDo(t, h, http.MethodDelete, "/admin/permissions/p1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RoutesAbsentWithoutHandler(t *testing.T) {
	h := newTestRouter(&fakeVerifyService{})
	req := httptest.NewRequest(http.MethodGet, "/admin/stamps", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
