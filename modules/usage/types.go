package usage

import (
	"time"

	"github.com/google/uuid"
)

// Dimension is one metered resource.
type Dimension string

const (
	DimensionEmployees Dimension = "employees"
	DimensionUsers     Dimension = "users"
	DimensionStorage   Dimension = "storage"
	DimensionAPIDaily  Dimension = "api_daily"
)

// Metric is one tenant's usage row for one calendar month.
type Metric struct {
	ID                   uuid.UUID        `json:"id"`
	TenantID             string           `json:"tenant_id"`
	PeriodStart          time.Time        `json:"period_start"`
	EmployeeCount        int              `json:"employee_count"`
	UserCount            int              `json:"user_count"`
	APIRequestCount      int64            `json:"api_request_count"`
	APIRequestCountToday int64            `json:"api_request_count_today"`
	LastAPIRequestDate   *time.Time       `json:"last_api_request_date,omitempty"`
	StorageBytesUsed     int64            `json:"storage_bytes_used"`
	FeatureUsage         map[string]int64 `json:"feature_usage,omitempty"`
	LastUpdated          time.Time        `json:"last_updated"`
}

// Limits are the caps the tenant's plan imposes. Nil means unbounded.
type Limits struct {
	MaxEmployees    int    `json:"max_employees"`
	MaxUsers        *int   `json:"max_users,omitempty"`
	MaxStorageBytes *int64 `json:"max_storage_bytes,omitempty"`
	APIPerDay       *int   `json:"api_per_day,omitempty"`
}

// CheckResult is the outcome of a limit check.
type CheckResult struct {
	Dimension Dimension `json:"dimension"`
	Allowed   bool      `json:"allowed"`
	Unlimited bool      `json:"unlimited"`
	Current   int64     `json:"current"`
	Limit     int64     `json:"limit,omitempty"`
}

// Aggregate is the cross-tenant sum of one period, for the operator
// dashboard.
type Aggregate struct {
	PeriodStart      time.Time `json:"period_start"`
	TenantCount      int       `json:"tenant_count"`
	TotalEmployees   int64     `json:"total_employees"`
	TotalUsers       int64     `json:"total_users"`
	TotalAPIRequests int64     `json:"total_api_requests"`
	TotalStorage     int64     `json:"total_storage_bytes"`
}

// Trend compares the current period's aggregate with the previous one.
type Trend struct {
	Current  Aggregate `json:"current"`
	Previous Aggregate `json:"previous"`
}

// PeriodStart returns the first of t's month in UTC, the canonical
// period key.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// warnedKey is the reserved feature_usage key marking a delivered 90%
// warning for a resource.
func warnedKey(dim Dimension) string {
	return "_warned:" + string(dim)
}
