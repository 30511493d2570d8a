// Package middleware establishes the request's tenant scope from the X-Tenant-ID
// header after cross-checking it against the bearer token.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"carepay/internal/tenant"
	"carepay/internal/tenant/models"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/httputil"
	"carepay/pkg/platform/middleware/auth"
	"carepay/pkg/requestcontext"
)

const HeaderTenantID = "X-Tenant-ID"

// Resolver confirms a tenant exists and is active.
type Resolver interface {
	Resolve(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
}

// RequireTenant must run after auth.RequireAuth. A missing or malformed header is a
// 400; a header naming a tenant other than the token's is a 403.
func RequireTenant(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			header := r.Header.Get(HeaderTenantID)
			if header == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-ID header is required"))
				return
			}
			tenantID, err := id.ParseTenantID(header)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-ID must be a UUID"))
				return
			}

			if claim := auth.GetTenantClaim(ctx); claim != tenantID.String() {
				logger.WarnContext(ctx, "tenant header does not match token",
					"request_id", requestID,
					"tenant_id", tenantID.String(),
					"subject", requestcontext.Subject(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token is not valid for this tenant"))
				return
			}

			if _, err := resolver.Resolve(ctx, tenantID); err != nil {
				if !dErrors.HasCode(err, dErrors.CodeNotFound) && !dErrors.HasCode(err, dErrors.CodeForbidden) {
					logger.ErrorContext(ctx, "tenant resolution failed",
						"request_id", requestID,
						"tenant_id", tenantID.String(),
						"error", err,
					)
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithScope(ctx, tenantID)))
		})
	}
}
