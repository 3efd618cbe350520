package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies what went wrong.
type Type string

const (
	TypePaymentFailure Type = "payment_failure"
	TypeCancellation   Type = "cancellation"
	TypeOverage        Type = "overage"
	TypeSuspension     Type = "suspension"
	TypeError          Type = "error"
)

// Severity ranks operator attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities so the hub can tell an escalation from
// a repeat of the same incident.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Status is the alert's position in the operator workflow.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is one operator-visible incident. Resource distinguishes multiple
// alerts of the same type per tenant (the overage dimension, a
// subscription id); it may be empty when the type alone identifies the
// incident.
type Alert struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       string         `json:"tenant_id"`
	SubscriptionID *uuid.UUID     `json:"subscription_id,omitempty"`
	Type           Type           `json:"alert_type"`
	Resource       string         `json:"resource,omitempty"`
	Severity       Severity       `json:"severity"`
	Status         Status         `json:"status"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Filter narrows alert listings.
type Filter struct {
	TenantID string
	Status   Status
	Type     Type
	Limit    int
	Offset   int
}
