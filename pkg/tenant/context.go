package tenant

import (
	"context"
	"log/slog"
)

// DefaultScope is the platform/master scope used for signup and operator
// endpoints where no tenant applies.
const DefaultScope = "default"

// Context is the immutable per-request tenant identity. ID is the canonical
// stringified tenant id. Bypass is set for SuperAdmin principals and lets
// the data access layer honor explicit cross-tenant reads. Impersonated
// marks requests made with an impersonation token; OperatorID then carries
// the operator's user id for audit.
type Context struct {
	ID           string
	Bypass       bool
	Impersonated bool
	OperatorID   string
}

// IsDefault reports whether the context is the platform scope.
func (c Context) IsDefault() bool {
	return c.ID == DefaultScope
}

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// WithContext returns a context carrying the tenant identity.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the tenant identity from the context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(Context)
	return tc, ok
}

// MustFromContext retrieves the tenant identity or panics. Use only in
// handlers mounted behind the tenant middleware.
func MustFromContext(ctx context.Context) Context {
	tc, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no tenant in context")
	}
	return tc
}

// LogExtractor feeds the logger's context extractor hook so every
// request-scoped record carries the tenant id without call sites passing it.
func LogExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if tc, ok := FromContext(ctx); ok && !tc.IsDefault() {
			return slog.String("tenant_id", tc.ID), true
		}
		return slog.Attr{}, false
	}
}
