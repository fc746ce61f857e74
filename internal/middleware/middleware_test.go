package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestRequireAPIKey_Missing(t *testing.T) {
	dummy := &dummyHandler{}
	h := RequireAPIKey(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", nil)
	h.ServeHTTP(rec, req)

	if dummy.called {
		t.Error("did not expect next handler to be called without an API key")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", rec.Code)
	}
}

func TestRequireAPIKey_Present(t *testing.T) {
	dummy := &dummyHandler{}
	h := RequireAPIKey(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", nil)
	req.Header.Set(APIKeyHeader, " sk_abc ")
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Fatal("expected next handler to be called when API key provided")
	}
	if key := GetAPIKeyFromContext(dummy.ctx); key != "sk_abc" {
		t.Errorf("expected context key 'sk_abc', got '%s'", key)
	}
}

func TestGetAPIKeyFromContext_Empty(t *testing.T) {
	if key := GetAPIKeyFromContext(context.Background()); key != "" {
		t.Errorf("expected empty key, got %q", key)
	}
}

func TestAdminAuth(t *testing.T) {
	cases := []struct {
		name       string
		configured string
		sent       string
		wantCode   int
		wantCalled bool
	}{
		{"disabled", "", "", http.StatusForbidden, false},
		{"disabled ignores header", "", "anything", http.StatusForbidden, false},
		{"wrong token", "s3cret", "guess", http.StatusForbidden, false},
		{"missing token", "s3cret", "", http.StatusForbidden, false},
		{"correct token", "s3cret", "s3cret", http.StatusOK, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := AdminAuth(tc.configured)(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/stamps", nil)
			if tc.sent != "" {
				req.Header.Set(AdminTokenHeader, tc.sent)
			}
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tc.wantCode)
			}
			if dummy.called != tc.wantCalled {
				t.Errorf("next called = %v; want %v", dummy.called, tc.wantCalled)
			}
		})
	}
}

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := chiMiddleware.RequestID(WithRequestLogging(zap.New(core))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}),
	))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/health" || fields["method"] != http.MethodGet {
		t.Errorf("unexpected request fields: %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v; want %d", fields["status"], http.StatusTeapot)
	}
	if fields["bytes"] != int64(len("short and stout")) {
		t.Errorf("bytes field = %v", fields["bytes"])
	}
	if id, _ := fields["request_id"].(string); strings.TrimSpace(id) == "" {
		t.Error("expected a request id")
	}
}
