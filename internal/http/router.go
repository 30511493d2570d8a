// Package httpapi assembles the public HTTP surface.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carepay/internal/blob"
	identityhandler "carepay/internal/identity/handler"
	tenantmw "carepay/internal/tenant/middleware"
	"carepay/pkg/platform/httputil"
	"carepay/pkg/platform/middleware/auth"
	"carepay/pkg/platform/middleware/metadata"
	"carepay/pkg/platform/middleware/request"
	"carepay/pkg/platform/middleware/requesttime"
)

// ReadinessCheck reports whether shared backends are reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterConfig collects what the router mounts. Gatherer may be nil to skip /metrics.
type RouterConfig struct {
	Logger     *slog.Logger
	Identity   *identityhandler.Handler
	Blobs      *blob.Handler
	Validator  auth.JWTValidator
	Tenants    tenantmw.Resolver
	Ready      ReadinessCheck
	Gatherer   prometheus.Gatherer
	TrustProxy bool
}

// NewRouter wires all public endpoints. Probes, metrics, and signed blob downloads
// sit outside the bearer-auth group; every identity route requires a token and a
// matching X-Tenant-ID.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(cfg.TrustProxy))
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				cfg.Logger.WarnContext(ctx, "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Blobs != nil {
		cfg.Blobs.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		r.Use(tenantmw.RequireTenant(cfg.Tenants, cfg.Logger))
		cfg.Identity.Register(r)
	})
	return r
}
