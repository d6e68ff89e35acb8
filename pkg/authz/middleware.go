package authz

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/identity"
)

// RequireOperation gates a route on the policy's allowed roles for the
// named operation. The request must already carry an authenticated
// caller.
func RequireOperation(gate *Gate, policy *Policy, operation string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity.CallerFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			roles, _ := policy.RolesFor(operation)
			allowed, err := gate.Allowed(r.Context(), caller.ID, Check{AllowedRoles: roles})
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "insufficient role for "+operation)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route on an active capability grant.
// super_admins pass without holding the grant.
func RequirePermission(gate *Gate, permissionKey string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity.CallerFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := gate.Allowed(r.Context(), caller.ID, Check{RequiredPermission: permissionKey})
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "capability "+permissionKey+" not granted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
