package tenant

import (
	"context"
	"net/http"
	"time"
)

// Info is the minimal tenant snapshot needed for request-scoped decisions.
// It is what the Provider returns and what the cache stores; the full
// tenant row lives in the tenants module.
type Info struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Domain             string    `json:"domain,omitempty"`
	Status             string    `json:"status"`
	SubscriptionActive bool      `json:"subscription_active"`
	MaxEmployees       int       `json:"max_employees"`
	CreatedAt          time.Time `json:"created_at"`
}

// Provider loads tenant snapshots from the source of truth. GetByID takes
// the canonical stringified tenant id; GetByDomain resolves a custom domain
// or subdomain. Both return ErrNotFound when no tenant matches.
type Provider interface {
	GetByID(ctx context.Context, id string) (*Info, error)
	GetByDomain(ctx context.Context, domain string) (*Info, error)
}

// Principal is the authenticated identity's tenant-relevant claims,
// extracted by the auth layer before tenant resolution runs.
type Principal struct {
	TenantID     string
	SuperAdmin   bool
	Impersonated bool
	OperatorID   string
}

// PrincipalSource extracts the authenticated principal from a request.
// A false return means the request is anonymous.
type PrincipalSource func(r *http.Request) (Principal, bool)
