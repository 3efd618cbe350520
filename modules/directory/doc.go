// Package directory holds the tenant's HR records: employees, departments
// and positions. Every read and write goes through the tenant-scoped store,
// so records never leak across tenants.
//
// Employee creation is metered: the service checks the plan's employee
// limit first and refreshes the usage counter after every write. While the
// tenant's subscription is inactive all non-idempotent writes are refused;
// reads keep working so the workspace stays inspectable during a grace
// period.
package directory
