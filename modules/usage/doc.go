// Package usage is the per-tenant metering engine. Each tenant gets one
// metrics row per calendar month (UTC); counters move through arithmetic
// updates so concurrent requests never lose increments, and the row is
// created lazily with ON CONFLICT DO NOTHING.
//
// The scanner walks every active tenant on an interval: it raises overage
// alerts through the alert hub, resolves them once usage drops back under
// limit, warns admins at 90% of a cap (once per resource per period), and
// asks the lifecycle to suspend tenants that stay over a hard limit for
// too long.
//
// Warning markers ride in the feature_usage JSONB under reserved
// "_warned:" keys so they reset naturally with each new period row.
package usage
