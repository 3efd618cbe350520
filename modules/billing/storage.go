package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanStorage loads the plan catalog. The Catalog service snapshots the
// result; implementations do not need their own caching.
type PlanStorage interface {
	// ListPlans returns every plan ordered by sort_order.
	ListPlans(ctx context.Context) ([]Plan, error)

	// ListPlanFeatures returns every plan-feature binding ordered by
	// plan and sort_order.
	ListPlanFeatures(ctx context.Context) ([]PlanFeature, error)
}

// SubscriptionStorage persists subscriptions. The partial unique index on
// open subscriptions backs the one-open-subscription-per-tenant rule.
type SubscriptionStorage interface {
	// CurrentByTenant returns the tenant's non-terminal subscription, or
	// ErrSubscriptionNotFound.
	CurrentByTenant(ctx context.Context, tenantID string) (*Subscription, error)

	// ByProviderID returns the subscription a provider event references,
	// or ErrSubscriptionNotFound.
	ByProviderID(ctx context.Context, provider, providerSubID string) (*Subscription, error)

	// Insert writes a new subscription. Returns ErrDuplicateSubscription
	// when the tenant already holds an open one.
	Insert(ctx context.Context, sub *Subscription) error

	// Update rewrites the mutable subscription fields.
	Update(ctx context.Context, sub *Subscription) error

	// SavePlanChange writes the subscription's new plan and the tenant's
	// denormalized employee cap in one transaction.
	SavePlanChange(ctx context.Context, sub *Subscription, maxEmployees int) error
}

// WebhookRecord is one persisted provider delivery. The raw payload is
// never discarded; the retry worker re-parses it on each attempt.
type WebhookRecord struct {
	ID              uuid.UUID  `json:"id"`
	Provider        string     `json:"provider"`
	ExternalEventID string     `json:"external_event_id"`
	EventType       string     `json:"event_type"`
	Payload         []byte     `json:"payload"`
	TenantID        string     `json:"tenant_id,omitempty"`
	SubscriptionID  *uuid.UUID `json:"subscription_id,omitempty"`
	SignatureValid  bool       `json:"signature_valid"`
	Processed       bool       `json:"processed"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// EventStorage persists webhook deliveries and hands them out for
// processing with at-most-once claims.
type EventStorage interface {
	// Insert persists a delivery. When (provider, external_event_id)
	// already exists the stored record is returned with created=false.
	Insert(ctx context.Context, rec *WebhookRecord) (stored *WebhookRecord, created bool, err error)

	// Get returns a delivery by id, or ErrEventNotFound.
	Get(ctx context.Context, id uuid.UUID) (*WebhookRecord, error)

	// Process claims the record if it is still unprocessed and runs fn on
	// it inside the claim. fn success marks it processed; failure records
	// the attempt and error. Returns false when the record was already
	// processed or claimed elsewhere.
	Process(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, rec *WebhookRecord) error) (bool, error)

	// ListRetryable returns unprocessed, signature-valid deliveries with
	// fewer than maxAttempts attempts, oldest first.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]WebhookRecord, error)
}
