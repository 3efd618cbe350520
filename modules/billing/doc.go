// Package billing owns the plan catalog, tenant subscriptions and the
// provider webhook pipeline.
//
// The catalog serves plan lookups from a short-lived in-memory snapshot;
// prices missing a quarterly or yearly tier fall back to multiples of the
// monthly price. Subscriptions enforce at most one non-terminal row per
// tenant.
//
// Webhook deliveries are persisted before anything else touches them: the
// raw payload lands in webhook_events first, the provider gets its 200,
// and effects run afterwards. A delivery whose effects fail stays
// unprocessed and is re-dispatched by the retry worker with exponential
// backoff. Duplicate deliveries short-circuit on the
// (provider, external_event_id) unique key.
package billing
