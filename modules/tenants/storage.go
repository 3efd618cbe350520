package tenants

import "context"

// Storage persists tenant rows, their lifecycle events and the seeded
// module catalog. Tenant rows are control-plane data: they are never
// tenant-scoped themselves, so implementations work on the raw connection
// and only borrow tenant scoping for the per-tenant tables they purge.
type Storage interface {
	// Insert assigns the tenant ID, stores the row and appends the Created
	// event in one transaction.
	Insert(ctx context.Context, t *Tenant, ev *LifecycleEvent) error

	ByID(ctx context.Context, id string) (*Tenant, error)
	ByDomain(ctx context.Context, domain string) (*Tenant, error)
	ByIdempotencyToken(ctx context.Context, token string) (*Tenant, error)

	List(ctx context.Context, f Filter) ([]Tenant, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Tenant, error)

	// ApplyTransition writes the tenant's mutable lifecycle fields and
	// appends the event in one transaction, guarded by the version the
	// caller read. A stale version returns ErrVersionConflict and writes
	// nothing.
	ApplyTransition(ctx context.Context, t *Tenant, ev *LifecycleEvent) error

	// RecordEvent appends an event that changes no status (plan changes,
	// payment failures).
	RecordEvent(ctx context.Context, ev *LifecycleEvent) error
	ListEvents(ctx context.Context, tenantID string, limit int) ([]LifecycleEvent, error)

	// SeedModules installs the tenant's module catalog, skipping keys that
	// already exist so provisioning retries are safe.
	SeedModules(ctx context.Context, tenantID string, modules []Module) error
	ListModules(ctx context.Context, tenantID string) ([]Module, error)

	// PurgeTenantData deletes the tenant's operational rows across all
	// tenant-scoped tables. Lifecycle events are kept for audit.
	PurgeTenantData(ctx context.Context, tenantID string) error

	// ExportData collects every tenant-scoped row grouped by table, for
	// the pre-deletion archive bundle.
	ExportData(ctx context.Context, tenantID string) (map[string][]map[string]any, error)
}
