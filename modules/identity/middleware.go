package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

type claimsCtxKey struct{}

// WithClaims stores the authenticated claims on the context.
func WithClaims(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClaimsFromContext extracts the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*AccessClaims)
	return claims, ok
}

// AccessTokenCookie is the fallback token carrier for browser clients.
const AccessTokenCookie = "accessToken"

// ImpersonationParser resolves operator impersonation tokens into claims
// scoped to the target tenant. Implemented by the operator module; nil
// disables impersonation.
type ImpersonationParser interface {
	ParseImpersonation(ctx context.Context, tok string) (*AccessClaims, error)
}

// Middleware extracts the bearer token (Authorization header or the
// accessToken cookie), verifies it and stores the claims on the request
// context. Tokens that fail JWT verification fall through to the
// impersonation parser. A request without a token passes anonymously;
// a request with a token nobody accepts fails with 401.
func Middleware(auth *Auth, imp ImpersonationParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractToken(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseAccessToken(tok)
			if err != nil && imp != nil {
				claims, err = imp.ParseImpersonation(r.Context(), tok)
			}
			if err != nil {
				httpx.WriteError(w, httpx.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			httpx.WriteError(w, httpx.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates a route on the caller's role having the action
// on the page. Anonymous requests get 401, denied ones 403.
func RequirePermission(perms *Permissions, pagePath string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, httpx.ErrUnauthenticated)
				return
			}
			allowed, err := perms.Can(r.Context(), claims.Role, pagePath, action)
			if err != nil {
				httpx.WriteError(w, err)
				return
			}
			if !allowed {
				httpx.WriteError(w, httpx.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalSource adapts the stored claims for the tenant resolver chain.
func PrincipalSource() tenant.PrincipalSource {
	return func(r *http.Request) (tenant.Principal, bool) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			return tenant.Principal{}, false
		}
		return tenant.Principal{
			TenantID:     claims.TenantID,
			SuperAdmin:   claims.Role == RoleSuperAdmin,
			Impersonated: claims.Impersonated,
			OperatorID:   claims.OperatorID,
		}, true
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
