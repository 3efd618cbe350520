// Package alerts is the operator-visible alert hub. Billing failures,
// cancellations, overages, suspensions and background worker errors all
// land here; the operator surface lists, acknowledges and resolves them.
//
// Raising is idempotent: at most one Active alert exists per
// (tenant, type, resource), and re-raising returns the existing id. The
// usage housekeeper resolves overage alerts once the tenant is back under
// limit.
package alerts
