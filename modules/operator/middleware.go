package operator

import (
	"net/http"

	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/pkg/httpx"
)

// RequireSuperAdmin gates the admin surface. Impersonation claims carry
// the tenant admin role, so an impersonating operator cannot reach the
// admin routes through the impersonation token.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := identity.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, httpx.ErrUnauthenticated)
			return
		}
		if claims.Role != identity.RoleSuperAdmin {
			httpx.WriteError(w, httpx.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}
