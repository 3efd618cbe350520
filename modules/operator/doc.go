// Package operator is the cross-tenant surface for platform staff. Every
// route is SuperAdmin-only and wrapped by the audit middleware, which
// writes one admin_audits row per invocation.
//
// Impersonation hands an operator a short-lived HMAC token scoped to one
// tenant. The grant row is checked on every use, so revocation wins over
// an unexpired token. Impersonated requests run under the target tenant's
// ordinary isolation and are tagged in the audit trail.
package operator
