package testutil

import (
	"net/http"

	"carepay/internal/tenant"
	id "carepay/pkg/domain"
)

// WithTenant attaches a tenant scope to the request context, as the tenant
// middleware does once the header is resolved. An unparseable id leaves the request
// unscoped.
func WithTenant(req *http.Request, tenantID string) *http.Request {
	parsed, err := id.ParseTenantID(tenantID)
	if err != nil {
		return req
	}
	return req.WithContext(tenant.WithScope(req.Context(), parsed))
}
