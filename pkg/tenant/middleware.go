package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Middleware resolves the request's tenant, validates it against the
// provider, and publishes the tenant Context. Requests that resolve to no
// tenant hint run under the "default" platform scope; RequireTenant guards
// the routes where that is not acceptable.
//
// The priority chain and the cross-source mismatch check follow the
// platform contract: the authenticated claim wins, and a claim that
// disagrees with the subdomain or the X-Tenant-Id header fails the request
// outright.
func Middleware(provider Provider, principals PrincipalSource, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		cache:        NewMemoryCache(),
		cacheTTL:     5 * time.Minute,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			var principal *Principal
			if principals != nil {
				if p, ok := principals(r); ok {
					principal = &p
				}
			}

			tc, err := resolve(r, principal, provider, cfg)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
		})
	}
}

// resolve normalizes the candidates to a canonical tenant id, applies the
// priority chain and the mismatch check, and verifies existence for
// non-default scopes.
func resolve(r *http.Request, principal *Principal, provider Provider, cfg *config) (Context, error) {
	cand := CollectCandidates(r, principal)
	ctx := r.Context()

	// Subdomains identify tenants by their domain record; normalize to the
	// canonical id before any comparison.
	var subdomainID string
	if cand.Subdomain != "" {
		if info, err := lookupDomain(ctx, provider, cfg, cand.Subdomain); err == nil {
			subdomainID = info.ID
		} else if !errors.Is(err, ErrNotFound) {
			return Context{}, err
		}
		// An unknown subdomain is ignored rather than fatal: the bare
		// domain and staging hosts would otherwise break resolution.
	}

	tc := Context{}
	if principal != nil {
		tc.Bypass = principal.SuperAdmin
		tc.Impersonated = principal.Impersonated
		tc.OperatorID = principal.OperatorID
	}

	switch {
	case cand.Claim != "":
		if subdomainID != "" && subdomainID != cand.Claim {
			return Context{}, ErrMismatch
		}
		if cand.HeaderID != "" && cand.HeaderID != cand.Claim {
			return Context{}, ErrMismatch
		}
		tc.ID = cand.Claim
	case subdomainID != "":
		tc.ID = subdomainID
	case cand.HeaderID != "":
		tc.ID = cand.HeaderID
	case cand.HeaderDomain != "":
		info, err := lookupDomain(ctx, provider, cfg, cand.HeaderDomain)
		if err != nil {
			return Context{}, err
		}
		tc.ID = info.ID
	default:
		tc.ID = DefaultScope
	}

	// SuperAdmins operate in the platform scope unless impersonating;
	// existence checks only apply to real tenant scopes.
	if tc.ID != DefaultScope && !tc.Bypass {
		if _, err := lookupID(ctx, provider, cfg, tc.ID); err != nil {
			return Context{}, err
		}
	}

	return tc, nil
}

func lookupID(ctx context.Context, provider Provider, cfg *config, id string) (*Info, error) {
	key := KeyByID(id)
	if info, ok := cfg.cache.Get(ctx, key); ok {
		return info, nil
	}
	info, err := provider.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.cache.Set(ctx, key, info, cfg.cacheTTL)
	return info, nil
}

func lookupDomain(ctx context.Context, provider Provider, cfg *config, domain string) (*Info, error) {
	key := KeyByDomain(domain)
	if info, ok := cfg.cache.Get(ctx, key); ok {
		return info, nil
	}
	info, err := provider.GetByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	cfg.cache.Set(ctx, key, info, cfg.cacheTTL)
	return info, nil
}

// RequireTenant rejects requests running under the platform scope. Mount
// it on tenant-scoped route groups after Middleware.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := FromContext(r.Context())
			if !ok {
				errorHandler(w, r, ErrNoContext)
				return
			}
			if tc.IsDefault() {
				errorHandler(w, r, ErrRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
