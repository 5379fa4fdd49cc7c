package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/modules/tenancy/services"
	"github.com/iota-uz/tenancy/pkg/composables"
	"github.com/iota-uz/tenancy/pkg/httpapi"
)

type TenantResolver interface {
	Resolve(ctx context.Context, host string) (*tenant.Tenant, error)
}

// RequireTenantFromHost resolves the tenant addressed by the Host header and stores it in
// the request context. Unknown hosts get 404, a failing store with no stale entry gets 503.
func RequireTenantFromHost(resolver TenantResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := resolver.Resolve(r.Context(), r.Host)
			if err != nil {
				logger := composables.UseLogger(r.Context()).
					WithField("host", r.Host).
					WithField("path", r.URL.Path).
					WithError(err)

				if errors.Is(err, services.ErrServiceUnavailable) {
					logger.Error("tenant resolution unavailable")
					w.Header().Set("Retry-After", "5")
					_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "TENANT_RESOLUTION_UNAVAILABLE", "tenant resolution is temporarily unavailable", nil)
					return
				}
				logger.Warn("tenant not found for host")
				_ = httpapi.WriteError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(composables.WithTenant(r.Context(), t)))
		})
	}
}
