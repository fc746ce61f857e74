package http

import (
	"net/http"

	"github.com/atinyakov/smartstamp/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handlers groups the handlers mounted by NewRouter. Admin may be nil, in
// which case no /admin routes exist. Metrics may be nil to omit /metrics.
type Handlers struct {
	Verify  *VerifyHandler
	Keys    *KeysHandler
	Health  *HealthHandler
	Admin   *AdminHandler
	Metrics http.Handler
}

// NewRouter constructs and returns an HTTP handler that serves the
// verification API.
//
// Routes:
//
//	GET    /                           → Health.Root
//	GET    /health                     → Health.Health
//	GET    /metrics                    → Metrics
//	GET    /.well-known/jwks.json      → Keys.JWKS
//	GET    /api/v1/public-key          → Keys.PublicKey
//	POST   /api/v1/verify              → Verify.Verify (requires X-API-Key)
//	       /admin/...                  → Admin (requires X-Admin-Token)
//
// Middleware chain (applied in order):
//  1. RequestID, RealIP, Recoverer       (chi defaults)
//  2. WithRequestLogging(logger)         logs every request
//  3. AllowContentType("application/json") on JSON endpoints only
func NewRouter(h Handlers, adminToken string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/", h.Health.Root)
	r.Get("/health", h.Health.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	r.Get("/.well-known/jwks.json", h.Keys.JWKS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/public-key", h.Keys.PublicKey)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Use(middleware.RequireAPIKey)
			r.Post("/verify", h.Verify.Verify)
		})
	})

	if h.Admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(adminToken))
			r.Use(chiMiddleware.AllowContentType("application/json"))

			r.Post("/stamps/calibrate", h.Admin.CalibrateStamp)
			r.Get("/stamps", h.Admin.ListStamps)
			r.Get("/stamps/{id}", h.Admin.GetStamp)
			r.Delete("/stamps/{id}", h.Admin.DeleteStamp)

			r.Post("/clients", h.Admin.CreateClient)
			r.Get("/clients", h.Admin.ListClients)
			r.Get("/clients/{id}", h.Admin.GetClient)
			r.Put("/clients/{id}/toggle", h.Admin.ToggleClient)

			r.Post("/permissions", h.Admin.GrantPermission)
			r.Get("/permissions", h.Admin.ListPermissions)
			r.Delete("/permissions/{id}", h.Admin.RevokePermission)
		})
	}

	return r
}
