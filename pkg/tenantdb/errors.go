package tenantdb

import "errors"

var (
	// ErrTenantContextRequired is returned when a statement against a
	// scoped table is built without a tenant context.
	ErrTenantContextRequired = errors.New("tenantdb: tenant context required for scoped table")

	// ErrBypassRequired is returned when AcrossTenants is requested by a
	// context without the SuperAdmin bypass flag.
	ErrBypassRequired = errors.New("tenantdb: cross-tenant access requires bypass")

	// ErrImmutableField is returned on any attempt to update tenant_id.
	// This is a programming error, not a permission problem.
	ErrImmutableField = errors.New("tenantdb: tenant_id is immutable")

	// ErrCrossTenantAccess is returned when a write targets a row owned by
	// another tenant.
	ErrCrossTenantAccess = errors.New("tenantdb: row belongs to another tenant")

	// ErrNotFound is returned when a write matches no row in any tenant.
	ErrNotFound = errors.New("tenantdb: no matching row")

	// ErrMissingTable is returned when a builder is finalized without a table.
	ErrMissingTable = errors.New("tenantdb: table not set")

	// ErrMissingWhere guards unscoped writes: updates and deletes on
	// unscoped tables must carry an explicit predicate.
	ErrMissingWhere = errors.New("tenantdb: refusing write without predicate")

	// ErrNoColumns is returned when an insert or update sets no columns.
	ErrNoColumns = errors.New("tenantdb: no columns set")
)
