// Package httpapi assembles the HTTP surface: shared middleware, the public
// auth routes, the authenticated customer routes and the admin routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coverline/internal/platform/metrics"
	"coverline/internal/platform/middleware"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/platform/middleware/admin"
	"coverline/pkg/platform/middleware/auth"
	"coverline/pkg/platform/middleware/metadata"
	"coverline/pkg/platform/middleware/request"
	"coverline/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// Routes is implemented by every module handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers with admin-only routes.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Validator auth.JWTValidator

	// Public routes need no token. PublicMiddleware wraps only them.
	Public           []Routes
	PublicMiddleware []func(http.Handler) http.Handler
	// Protected routes need a valid token of any role.
	Protected []Routes
	// Admin routes need a token with the ADMIN role.
	Admin []AdminRoutes

	Health map[string]HealthCheck
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.LatencyMiddleware(cfg.Metrics))

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.PublicMiddleware...)
		for _, h := range cfg.Public {
			h.Register(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		for _, h := range cfg.Protected {
			h.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(cfg.Logger))
			for _, h := range cfg.Admin {
				h.RegisterAdmin(r)
			}
		})
	})
	return r
}

// HealthResponse lists each dependency as "ok" or its error.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
