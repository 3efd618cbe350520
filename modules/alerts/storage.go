package alerts

import (
	"context"

	"github.com/google/uuid"
)

// Storage persists alerts. Insert must enforce the partial uniqueness of
// Active alerts per (tenant_id, alert_type, resource): a concurrent
// duplicate insert surfaces as ErrDuplicate so the hub can return the
// winner.
type Storage interface {
	// FindActive returns the Active alert for the dedup key, or ErrNotFound.
	FindActive(ctx context.Context, tenantID string, typ Type, resource string) (*Alert, error)

	// Insert writes a new alert. Returns ErrDuplicate when an Active alert
	// with the same dedup key already exists.
	Insert(ctx context.Context, a *Alert) error

	// Get returns an alert by id.
	Get(ctx context.Context, id uuid.UUID) (*Alert, error)

	// UpdateDetails rewrites a live alert's severity, message and
	// metadata in place. ID, status and created_at are untouched so the
	// incident keeps its identity and its age.
	UpdateDetails(ctx context.Context, id uuid.UUID, severity Severity, message string, metadata map[string]any) error

	// UpdateStatus moves an alert to the given status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// List returns alerts matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Alert, error)

	// CountActiveBySeverity feeds the operator dashboard histogram.
	CountActiveBySeverity(ctx context.Context) (map[Severity]int, error)
}

