package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/httputil"
	"carepay/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Subject  string
	TenantID string
	JTI      string
}

type contextKeyTenantClaim struct{}

// ContextKeyTenantClaim holds the tenant the bearer token is bound to.
var ContextKeyTenantClaim = contextKeyTenantClaim{}

// GetTenantClaim retrieves the token's tenant claim from the context
func GetTenantClaim(ctx context.Context) string {
	tenantID, ok := ctx.Value(ContextKeyTenantClaim).(string)
	if !ok {
		return ""
	}
	return tenantID
}

// WithTenantClaim injects a tenant claim. Handler tests use it in place of a token.
func WithTenantClaim(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ContextKeyTenantClaim, tenantID)
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithSubject(ctx, claims.Subject)
			ctx = WithTenantClaim(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
