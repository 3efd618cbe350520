package billing

import (
	"time"

	"github.com/google/uuid"
)

// BillingInterval is the subscription billing period.
type BillingInterval string

const (
	IntervalMonthly   BillingInterval = "monthly"
	IntervalQuarterly BillingInterval = "quarterly"
	IntervalYearly    BillingInterval = "yearly"
)

// SubscriptionStatus tracks a subscription through its provider lifecycle.
type SubscriptionStatus string

const (
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether the status ends the subscription. A tenant may
// hold at most one non-terminal subscription.
func (s SubscriptionStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Usable reports whether the subscription grants feature access.
func (s SubscriptionStatus) Usable() bool {
	return s == StatusActive || s == StatusTrialing
}

// Plan is one row of the plan catalog. Nil price tiers fall back to
// multiples of the monthly price; nil caps mean unbounded.
type Plan struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	MonthlyPriceCents   int64  `json:"monthly_price_cents"`
	QuarterlyPriceCents *int64 `json:"quarterly_price_cents,omitempty"`
	YearlyPriceCents    *int64 `json:"yearly_price_cents,omitempty"`
	Currency            string `json:"currency"`
	MaxEmployees        int    `json:"max_employees"`
	MaxUsers            *int   `json:"max_users,omitempty"`
	MaxStorageBytes     *int64 `json:"max_storage_bytes,omitempty"`
	APILimitPerDay      *int   `json:"api_limit_per_day,omitempty"`
	TrialDays           int    `json:"trial_days"`
	IsPublic            bool   `json:"is_public"`
	IsDefault           bool   `json:"is_default"`
	SortOrder           int    `json:"sort_order"`
}

// QuarterlyPrice returns the quarterly tier, falling back to monthly x3.
func (p Plan) QuarterlyPrice() int64 {
	if p.QuarterlyPriceCents != nil {
		return *p.QuarterlyPriceCents
	}
	return p.MonthlyPriceCents * 3
}

// YearlyPrice returns the yearly tier, falling back to monthly x12.
func (p Plan) YearlyPrice() int64 {
	if p.YearlyPriceCents != nil {
		return *p.YearlyPriceCents
	}
	return p.MonthlyPriceCents * 12
}

// PriceFor returns the price for the given interval.
func (p Plan) PriceFor(interval BillingInterval) int64 {
	switch interval {
	case IntervalQuarterly:
		return p.QuarterlyPrice()
	case IntervalYearly:
		return p.YearlyPrice()
	default:
		return p.MonthlyPriceCents
	}
}

// Caps are the plan's resource limits, consumed by the usage engine.
type Caps struct {
	MaxEmployees    int    `json:"max_employees"`
	MaxUsers        *int   `json:"max_users,omitempty"`
	MaxStorageBytes *int64 `json:"max_storage_bytes,omitempty"`
	APILimitPerDay  *int   `json:"api_limit_per_day,omitempty"`
}

// Caps extracts the plan's limits.
func (p Plan) Caps() Caps {
	return Caps{
		MaxEmployees:    p.MaxEmployees,
		MaxUsers:        p.MaxUsers,
		MaxStorageBytes: p.MaxStorageBytes,
		APILimitPerDay:  p.APILimitPerDay,
	}
}

// Feature is a catalog-wide feature definition.
type Feature struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	ValueType string `json:"value_type"`
}

// PlanFeature binds a feature value to a plan, ordered for display.
type PlanFeature struct {
	PlanID     string `json:"plan_id"`
	FeatureKey string `json:"feature_key"`
	Value      string `json:"value"`
	SortOrder  int    `json:"sort_order"`
}

// Subscription is a tenant's billing relationship.
type Subscription struct {
	ID                     uuid.UUID          `json:"id"`
	TenantID               string             `json:"tenant_id"`
	PlanID                 string             `json:"plan_id"`
	Status                 SubscriptionStatus `json:"status"`
	Provider               string             `json:"provider,omitempty"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string             `json:"provider_customer_id,omitempty"`
	PriceCents             int64              `json:"price_cents"`
	Currency               string             `json:"currency"`
	Interval               BillingInterval    `json:"billing_interval"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	TrialEndsAt            *time.Time         `json:"trial_ends_at,omitempty"`
	AutoRenew              bool               `json:"auto_renew"`
	PaymentFailureCount    int                `json:"payment_failure_count"`
	CancelledAt            *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}
