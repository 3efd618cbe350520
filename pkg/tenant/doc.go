// Package tenant resolves the caller's tenant on every inbound request and
// publishes it through the request context for the rest of the stack.
//
// Resolution walks a fixed priority chain: the authenticated principal's
// tenant claim, the host subdomain, the X-Tenant-Id header, the
// X-Tenant-Domain header, and finally the literal "default" platform scope.
// A claim that disagrees with a subdomain or header is a hard failure so a
// token for one tenant can never be combined with headers for another.
//
// The middleware validates resolved tenants against a Provider (backed by
// the tenants module, fronted by a Cache) and stores an immutable Context
// value:
//
//	tc := tenant.MustFromContext(ctx)
//	rows, err := store.Query(ctx, ...) // isolation keyed on tc.ID
//
// SuperAdmin principals get Bypass set; the data access layer consults it
// before honoring cross-tenant reads. Impersonation swaps the tenant in the
// claim while keeping the operator's identity on the context for audit.
package tenant
