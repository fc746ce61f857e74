package client

import (
	"context"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/smartstamp/internal/credential"
	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/matcher"
	"github.com/atinyakov/smartstamp/internal/models"
	handler "github.com/atinyakov/smartstamp/internal/server/handler/http"
	"github.com/atinyakov/smartstamp/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var enrolled = []fingerprint.Point{{X: 0, Y: 0}, {X: 40, Y: 5}, {X: 55, Y: 38}, {X: 22, Y: 60}, {X: -8, Y: 31}}

// memoryRepo serves one client ("sk_test") permitted to use one stamp.
type memoryRepo struct {
	ref      fingerprint.Fingerprint
	outcomes []models.Outcome
}

func (m *memoryRepo) LookupCallerByKey(_ context.Context, key string) (*models.Caller, error) {
	if key != "sk_test" {
		return nil, nil
	}
	return &models.Caller{ID: "c1", Name: "Test"}, nil
}

func (m *memoryRepo) ListActivePermissions(context.Context, string) ([]string, error) {
	return []string{"stamp-1"}, nil
}

func (m *memoryRepo) GetFingerprints(context.Context, []string) (map[string]fingerprint.Fingerprint, error) {
	return map[string]fingerprint.Fingerprint{"stamp-1": m.ref}, nil
}

func (m *memoryRepo) AppendAuditLog(_ context.Context, o models.Outcome) error {
	m.outcomes = append(m.outcomes, o)
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *credential.Issuer) {
	t.Helper()
	ref, err := fingerprint.Extract(enrolled)
	require.NoError(t, err)

	key, err := credential.GenerateKey()
	require.NoError(t, err)
	issuer, err := credential.NewIssuer(key)
	require.NoError(t, err)

	svc := service.NewVerifyService(&memoryRepo{ref: ref}, issuer, service.VerifyConfig{
		Tolerance:      matcher.Tolerance{MSE: 0.0001, MaxError: 0.01},
		TokenTTL:       time.Minute,
		StorageTimeout: time.Second,
	}, zap.NewNop(), nil)

	router := handler.NewRouter(handler.Handlers{
		Verify: &handler.VerifyHandler{VerifyService: svc},
		Keys:   &handler.KeysHandler{Keys: issuer},
		Health: &handler.HealthHandler{},
	}, "", zap.NewNop())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, issuer
}

func TestClient_VerifyAndCheckToken(t *testing.T) {
	ts, _ := newServer(t)
	c := New(ts.URL+"/", "sk_test", ts.Client())
	ctx := context.Background()

	res, err := c.Verify(ctx, enrolled)
	require.NoError(t, err)
	assert.Equal(t, "valid", res.Status)
	assert.Equal(t, "stamp-1", res.StampID)

	pub, err := c.PublicKey(ctx)
	require.NoError(t, err)

	claims, err := credential.NewVerifier(pub).Verify(res.JWTToken)
	require.NoError(t, err)
	assert.Equal(t, "stamp-1", claims.StampID)
	assert.Equal(t, "valid", claims.Status)
	assert.NotEmpty(t, claims.Nonce)
}

func TestClient_VerifyRejected(t *testing.T) {
	ts, _ := newServer(t)
	ctx := context.Background()

	t.Run("bad key", func(t *testing.T) {
		_, err := New(ts.URL, "sk_wrong", ts.Client()).Verify(ctx, enrolled)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "invalid", apiErr.Status)
		assert.Equal(t, "invalid API key", apiErr.Message)
	})

	t.Run("wrong shape", func(t *testing.T) {
		square := []fingerprint.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 5, Y: 5}}
		_, err := New(ts.URL, "sk_test", ts.Client()).Verify(ctx, square)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "fingerprint mismatch")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := New(ts.URL, "", ts.Client()).Verify(ctx, enrolled)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "missing API key", apiErr.Message)
	})
}

func TestClient_PublicKeyServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := New(ts.URL, "", nil).PublicKey(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "internal error", apiErr.Message)
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("no CA", func(t *testing.T) {
		c, err := NewHTTPClient("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTimeout, c.Timeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewHTTPClient(filepath.Join(t.TempDir(), "nope.crt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("garbage file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.crt")
		require.NoError(t, os.WriteFile(path, []byte("not a cert"), 0o600))
		_, err := NewHTTPClient(path)
		assert.Error(t, err)
	})

	t.Run("trusts the given CA", func(t *testing.T) {
		ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		path := filepath.Join(t.TempDir(), "ca.crt")
		certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
		require.NoError(t, os.WriteFile(path, certPEM, 0o600))

		c, err := NewHTTPClient(path)
		require.NoError(t, err)
		resp, err := c.Get(ts.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}
