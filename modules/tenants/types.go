package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Status is a tenant's lifecycle state.
type Status string

const (
	StatusProvisioning       Status = "provisioning"
	StatusProvisioningFailed Status = "provisioning_failed"
	StatusActive             Status = "active"
	StatusSuspended          Status = "suspended"
	StatusCancelled          Status = "cancelled"
	StatusPendingDeletion    Status = "pending_deletion"
	StatusDeleted            Status = "deleted"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventCreated               EventType = "created"
	EventProvisioningCompleted EventType = "provisioning_completed"
	EventProvisioningFailed    EventType = "provisioning_failed"
	EventActivated             EventType = "activated"
	EventSuspended             EventType = "suspended"
	EventResumed               EventType = "resumed"
	EventUpgraded              EventType = "upgraded"
	EventDowngraded            EventType = "downgraded"
	EventCancelled             EventType = "cancelled"
	EventMarkedForDeletion     EventType = "marked_for_deletion"
	EventDeleted               EventType = "deleted"
	EventPaymentFailed         EventType = "payment_failed"
)

// Tenant is the control-plane row for one organization. ID is the
// stringified serial assigned by the storage on insert.
type Tenant struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Domain              string            `json:"domain,omitempty"`
	Status              Status            `json:"status"`
	AdminEmail          string            `json:"admin_email"`
	AdminName           string            `json:"admin_name"`
	ProviderCustomerIDs map[string]string `json:"provider_customer_ids,omitempty"`
	MaxEmployees        int               `json:"max_employees"`
	SubscriptionActive  bool              `json:"subscription_active"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	IdempotencyToken    string            `json:"-"`
	ProvisionedAt       *time.Time        `json:"provisioned_at,omitempty"`
	ActivatedAt         *time.Time        `json:"activated_at,omitempty"`
	SuspendedAt         *time.Time        `json:"suspended_at,omitempty"`
	GracePeriodEndsAt   *time.Time        `json:"grace_period_ends_at,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	ScheduledDeletionAt *time.Time        `json:"scheduled_deletion_at,omitempty"`
	Version             int64             `json:"-"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// LifecycleEvent is the immutable audit record appended with every status
// change (and for supplementary events that change no status).
type LifecycleEvent struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       string         `json:"tenant_id"`
	Type           EventType      `json:"event_type"`
	PreviousStatus Status         `json:"previous_status,omitempty"`
	NewStatus      Status         `json:"new_status,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	TriggeredBy    string         `json:"triggered_by,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	EventDate      time.Time      `json:"event_date"`
}

// Module is one navigation entry of the tenant's module catalog, seeded
// during provisioning.
type Module struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	NavOrder int       `json:"nav_order"`
	Enabled  bool      `json:"enabled"`
}

// Filter narrows operator tenant listings.
type Filter struct {
	Search string
	Status Status
	Limit  int
	Offset int
}

// Config holds the lifecycle env settings.
type Config struct {
	GracePeriodDays   int    `env:"LIFECYCLE_GRACE_PERIOD_DAYS" envDefault:"30"`
	RetentionDays     int    `env:"LIFECYCLE_RETENTION_DAYS" envDefault:"90"`
	ProvisionBatch    int    `env:"PROVISION_BATCH_SIZE" envDefault:"10"`
	DeletionBatch     int    `env:"DELETION_BATCH_SIZE" envDefault:"5"`
	ActivationBaseURL string `env:"ACTIVATION_BASE_URL" envDefault:"https://app.crewplane.io/activate"`
}
