package tenant

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/crewplane/pkg/httpx"
)

// ErrorHandler renders tenant resolution failures.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// config holds middleware configuration.
type config struct {
	cache        Cache
	cacheTTL     time.Duration
	errorHandler ErrorHandler
	skipPaths    []string
}

// Option configures the middleware.
type Option func(*config)

// WithCache sets the tenant snapshot cache. The default is an in-process
// LRU; production deployments share a RedisCache across instances.
func WithCache(cache Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithCacheTTL sets how long tenant snapshots stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = ttl
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution entirely,
// such as health checks and webhook endpoints.
func WithSkipPaths(paths ...string) Option {
	return func(c *config) {
		c.skipPaths = paths
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, httpx.ErrTenantNotFound)
	case errors.Is(err, ErrMismatch):
		httpx.WriteError(w, httpx.ErrTenantMismatch)
	case errors.Is(err, ErrRequired), errors.Is(err, ErrInvalidIdentifier):
		httpx.WriteError(w, httpx.ErrTenantRequired)
	default:
		httpx.WriteError(w, err)
	}
}
