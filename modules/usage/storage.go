package usage

import (
	"context"
	"time"
)

// Storage persists usage metrics. Counter mutations are arithmetic at the
// storage level so concurrent writers never read-modify-write a counter;
// only feature usage, which lives in JSONB, updates inside a transaction.
type Storage interface {
	// EnsureRow creates the tenant's period row if it does not exist,
	// seeded with the given live counts. Existing rows are untouched.
	EnsureRow(ctx context.Context, tenantID string, period time.Time, employees, users int) error

	// Get returns the tenant's row for the period, or ErrMetricNotFound.
	Get(ctx context.Context, tenantID string, period time.Time) (*Metric, error)

	// IncrementAPIRequests bumps the monthly counter and the daily
	// counter, resetting the daily counter when today differs from the
	// row's last request date.
	IncrementAPIRequests(ctx context.Context, tenantID string, period time.Time, today time.Time) error

	// SetEmployeeCount overwrites the employee gauge.
	SetEmployeeCount(ctx context.Context, tenantID string, period time.Time, n int) error

	// SetUserCount overwrites the user gauge.
	SetUserCount(ctx context.Context, tenantID string, period time.Time, n int) error

	// AddStorageBytes applies a possibly negative delta, flooring at zero.
	AddStorageBytes(ctx context.Context, tenantID string, period time.Time, delta int64) error

	// IncrementFeatureUsage bumps one feature counter inside a
	// transaction.
	IncrementFeatureUsage(ctx context.Context, tenantID string, period time.Time, key string, delta int64) error

	// MarkWarned records a delivered warning for the resource. Returns
	// false when the period already carries the marker.
	MarkWarned(ctx context.Context, tenantID string, period time.Time, dim Dimension) (bool, error)

	// Aggregate sums the period across all tenants.
	Aggregate(ctx context.Context, period time.Time) (Aggregate, error)

	// ListForPeriod returns every tenant's row for the period.
	ListForPeriod(ctx context.Context, period time.Time) ([]Metric, error)
}
