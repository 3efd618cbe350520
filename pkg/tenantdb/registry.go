package tenantdb

// TenantColumn is the column every scoped table carries.
const TenantColumn = "tenant_id"

// EffectiveTenantAlias annotates rows returned from cross-tenant reads so
// the operator surface can attribute each row to its owner.
const EffectiveTenantAlias = "effective_tenant_id"

// Registry is the closed set of tenant-scoped tables. Statements against a
// registered table are filtered, stamped and guarded; everything else
// passes through. The set is fixed at startup and safe for concurrent
// reads.
type Registry struct {
	scoped map[string]struct{}
}

// NewRegistry builds a registry from the scoped table names.
func NewRegistry(tables ...string) *Registry {
	scoped := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		scoped[t] = struct{}{}
	}
	return &Registry{scoped: scoped}
}

// IsScoped reports whether statements against the table are tenant-scoped.
func (r *Registry) IsScoped(table string) bool {
	_, ok := r.scoped[table]
	return ok
}

// Tables returns the registered table names, for the deletion sweep which
// must remove a tenant's rows table by table.
func (r *Registry) Tables() []string {
	tables := make([]string, 0, len(r.scoped))
	for t := range r.scoped {
		tables = append(tables, t)
	}
	return tables
}
