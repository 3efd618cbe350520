package billing

import (
	"net/http"
	"strings"
	"time"
)

// EventType is the normalized billing event type. Provider adapters map
// their native event names onto these; unmapped events pass through with
// the native name and are ignored by the dispatcher.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionUpdated   EventType = "subscription.updated"
	EventSubscriptionCancelled EventType = "subscription.canceled"
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventPaymentFailed         EventType = "payment.failed"
)

// Event is a normalized webhook event. TenantID comes from the custom
// data the checkout attached at purchase time; it is the canonical tenant
// id, not the provider's customer id.
type Event struct {
	ExternalID             string
	Type                   EventType
	ProviderEvent          string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	TenantID               string
	Status                 SubscriptionStatus
	Interval               BillingInterval
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	OccurredAt             time.Time
}

// Provider adapts one billing vendor: signature verification on the raw
// request and payload normalization. Verify must not consume the request
// body the caller already read.
type Provider interface {
	// Name is the provider key used in webhook routes and event rows.
	Name() string

	// Verify checks the delivery's signature against the shared secret.
	Verify(r *http.Request, body []byte) (bool, error)

	// Parse normalizes the raw payload. It does not verify anything; the
	// retry worker re-parses already-verified stored payloads with it.
	Parse(body []byte) (*Event, error)
}

// mapProviderStatus normalizes a provider subscription status string.
func mapProviderStatus(status string) SubscriptionStatus {
	switch strings.ToLower(status) {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return SubscriptionStatus(strings.ToLower(status))
	}
}
