// Package tenantdb is the isolating data access layer. Module stores build
// every statement against tenant-scoped tables through it; the builders
// inject the tenant predicate on reads, stamp tenant_id on inserts, refuse
// tenant_id mutation outright, and turn zero-row writes into a cross-tenant
// or not-found verdict.
//
// A table becomes scoped by registering it:
//
//	registry := tenantdb.NewRegistry("employees", "departments")
//	store := tenantdb.New(pool, registry)
//
// and from then on every builder consults the tenant context:
//
//	rows, err := store.Query(ctx, store.Select("id", "name").
//		From("employees").
//		Where("status = ?", "active"))
//
// Under tenant context "1" the query runs with tenant_id = '1' appended;
// under no tenant context it refuses to build. Cross-tenant reads exist
// only as an explicit, bypass-gated opt-out:
//
//	b := store.Select("id", "name").From("employees").AcrossTenants("")
//
// which requires the SuperAdmin bypass flag on the context and annotates
// every row with effective_tenant_id.
//
// Statements against unscoped tables (tenants, users, webhook_events,
// admin_audits) pass through untouched.
package tenantdb
