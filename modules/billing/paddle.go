package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds the Paddle webhook configuration.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// PaddleProvider verifies and normalizes Paddle webhook deliveries.
type PaddleProvider struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates the Paddle adapter.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	return &PaddleProvider{verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

// Verify checks the Paddle-Signature header against the shared secret.
// The body is re-attached because the caller has already drained it.
func (p *PaddleProvider) Verify(r *http.Request, body []byte) (bool, error) {
	clone := r.Clone(r.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	valid, err := p.verifier.Verify(clone)
	if err != nil {
		return false, fmt.Errorf("paddle webhook verification: %w", err)
	}
	return valid, nil
}

type paddleEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string         `json:"id"`
		SubscriptionID string         `json:"subscription_id"`
		Status         string         `json:"status"`
		CustomerID     string         `json:"customer_id"`
		CustomData     map[string]any `json:"custom_data"`
		BillingCycle   *struct {
			Interval string `json:"interval"`
		} `json:"billing_cycle"`
		CurrentBillingPeriod *struct {
			StartsAt time.Time `json:"starts_at"`
			EndsAt   time.Time `json:"ends_at"`
		} `json:"current_billing_period"`
	} `json:"data"`
}

// Parse normalizes a Paddle payload. The tenant id travels in the custom
// data the checkout attached at purchase time.
func (p *PaddleProvider) Parse(body []byte) (*Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, ErrInvalidPayload
	}

	ev := &Event{
		ExternalID:         env.EventID,
		Type:               mapPaddleEventType(env.EventType),
		ProviderEvent:      env.EventType,
		ProviderCustomerID: env.Data.CustomerID,
		Status:             mapProviderStatus(env.Data.Status),
		OccurredAt:         env.OccurredAt,
	}

	// Transaction events reference their subscription indirectly.
	ev.ProviderSubscriptionID = env.Data.ID
	if env.Data.SubscriptionID != "" {
		ev.ProviderSubscriptionID = env.Data.SubscriptionID
	}

	if tid, ok := env.Data.CustomData["tenant_id"].(string); ok {
		ev.TenantID = tid
	}

	if env.Data.BillingCycle != nil {
		switch env.Data.BillingCycle.Interval {
		case "month":
			ev.Interval = IntervalMonthly
		case "quarter":
			ev.Interval = IntervalQuarterly
		case "year":
			ev.Interval = IntervalYearly
		}
	}
	if env.Data.CurrentBillingPeriod != nil {
		start := env.Data.CurrentBillingPeriod.StartsAt
		end := env.Data.CurrentBillingPeriod.EndsAt
		ev.CurrentPeriodStart = &start
		ev.CurrentPeriodEnd = &end
	}

	return ev, nil
}

func mapPaddleEventType(native string) EventType {
	switch native {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.resumed":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(native)
	}
}
