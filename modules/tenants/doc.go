// Package tenants owns the tenant lifecycle: signup, provisioning, the
// status state machine, suspension and recovery, cancellation, export and
// the deletion sweep.
//
// Every status change goes through the transition table and appends a
// lifecycle event atomically with the status write, guarded by an
// optimistic version column. Signup is idempotent on the caller-supplied
// idempotency token; provisioning runs as a background poller over rows in
// the Provisioning status, so a crash mid-provision is retried and every
// seeding step is idempotent.
//
// The module is the platform's source of truth for tenant snapshots: it
// implements the resolver's Provider, the billing lifecycle hooks and the
// usage scanner's tenant listing, and invalidates the snapshot cache on
// every write.
package tenants
