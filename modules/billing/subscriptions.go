package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/pkg/mailer"
)

// Lifecycle is the slice of the tenant lifecycle the billing module
// drives. The tenants module implements it; billing never touches tenant
// status rows directly.
type Lifecycle interface {
	Activate(ctx context.Context, tenantID, triggeredBy string) error
	Suspend(ctx context.Context, tenantID, reason, triggeredBy string) error
	Resume(ctx context.Context, tenantID, triggeredBy string) error
	Cancel(ctx context.Context, tenantID, reason, triggeredBy string) error
	RecordPlanChange(ctx context.Context, tenantID, fromPlan, toPlan string, upgrade bool, triggeredBy string) error
	RecordPaymentFailure(ctx context.Context, tenantID, reason string) error
}

// TenantSource resolves the tenant admin contact for billing email.
type TenantSource interface {
	AdminContact(ctx context.Context, tenantID string) (email, name string, err error)
}

// CacheInvalidator drops a tenant's cached snapshot after billing writes
// that change what the snapshot carries.
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string)
}

// Subscriptions manages the tenant-subscription relationship.
type Subscriptions struct {
	storage    SubscriptionStorage
	catalog    *Catalog
	lifecycle  Lifecycle
	tenants    TenantSource
	email      mailer.EmailSender
	invalidate CacheInvalidator
	logger     *slog.Logger
	now        func() time.Time
}

// SubscriptionsOption configures the service.
type SubscriptionsOption func(*Subscriptions)

// WithLifecycle wires the tenant lifecycle for plan-change events.
func WithLifecycle(lc Lifecycle) SubscriptionsOption {
	return func(s *Subscriptions) { s.lifecycle = lc }
}

// WithTenantSource wires admin contact resolution for notifications.
func WithTenantSource(ts TenantSource) SubscriptionsOption {
	return func(s *Subscriptions) { s.tenants = ts }
}

// WithEmailSender wires plan-change confirmation email.
func WithEmailSender(sender mailer.EmailSender) SubscriptionsOption {
	return func(s *Subscriptions) { s.email = sender }
}

// WithCacheInvalidator wires tenant cache invalidation.
func WithCacheInvalidator(ci CacheInvalidator) SubscriptionsOption {
	return func(s *Subscriptions) { s.invalidate = ci }
}

// WithSubscriptionsLogger sets the service logger.
func WithSubscriptionsLogger(logger *slog.Logger) SubscriptionsOption {
	return func(s *Subscriptions) { s.logger = logger }
}

// WithSubscriptionsClock overrides time for tests.
func WithSubscriptionsClock(now func() time.Time) SubscriptionsOption {
	return func(s *Subscriptions) { s.now = now }
}

// NewSubscriptions creates the subscription service.
func NewSubscriptions(storage SubscriptionStorage, catalog *Catalog, opts ...SubscriptionsOption) *Subscriptions {
	s := &Subscriptions{
		storage: storage,
		catalog: catalog,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the tenant's open subscription.
func (s *Subscriptions) Current(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.storage.CurrentByTenant(ctx, tenantID)
}

// StartDefault opens the tenant's first subscription on the default plan.
// Provisioning calls it once per tenant; the plan's trial window is
// honored when present.
func (s *Subscriptions) StartDefault(ctx context.Context, tenantID string) (*Subscription, error) {
	plan, err := s.catalog.DefaultPlan(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &Subscription{
		ID:         uuid.New(),
		TenantID:   tenantID,
		PlanID:     plan.ID,
		Status:     StatusActive,
		PriceCents: plan.MonthlyPriceCents,
		Currency:   plan.Currency,
		Interval:   IntervalMonthly,
		AutoRenew:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if plan.TrialDays > 0 {
		sub.Status = StatusTrialing
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.TrialEndsAt = &trialEnd
	}

	if err := s.storage.Insert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ChangePlan moves the tenant's open subscription to another plan. The
// subscription row and the tenant's denormalized employee cap change in
// one transaction; the lifecycle event, admin email and cache
// invalidation follow the commit.
func (s *Subscriptions) ChangePlan(ctx context.Context, tenantID, planID, triggeredBy string) (*Subscription, error) {
	sub, err := s.storage.CurrentByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.PlanID == planID {
		return sub, nil
	}

	plan, err := s.catalog.PlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	upgrade := true
	fromPlanID := sub.PlanID
	if old, err := s.catalog.PlanByID(ctx, sub.PlanID); err == nil {
		upgrade = plan.MonthlyPriceCents > old.MonthlyPriceCents
	}

	interval := sub.Interval
	if interval == "" {
		interval = IntervalMonthly
	}
	sub.PlanID = plan.ID
	sub.PriceCents = plan.PriceFor(interval)
	sub.Currency = plan.Currency
	sub.UpdatedAt = s.now().UTC()

	if err := s.storage.SavePlanChange(ctx, sub, plan.MaxEmployees); err != nil {
		return nil, err
	}

	if s.lifecycle != nil {
		if err := s.lifecycle.RecordPlanChange(ctx, tenantID, fromPlanID, plan.ID, upgrade, triggeredBy); err != nil {
			s.logger.ErrorContext(ctx, "plan change event not recorded",
				slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	s.notifyPlanChange(ctx, tenantID, plan.Name, upgrade)
	if s.invalidate != nil {
		s.invalidate.InvalidateTenant(ctx, tenantID)
	}
	return sub, nil
}

func (s *Subscriptions) notifyPlanChange(ctx context.Context, tenantID, planName string, upgrade bool) {
	if s.email == nil || s.tenants == nil {
		return
	}
	adminEmail, tenantName, err := s.tenants.AdminContact(ctx, tenantID)
	if err != nil {
		s.logger.ErrorContext(ctx, "admin contact lookup failed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
		return
	}
	if err := s.email.SendEmail(ctx, mailer.PlanChanged(adminEmail, tenantName, planName, upgrade)); err != nil {
		s.logger.ErrorContext(ctx, "plan change email failed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}

// UpsertFromEvent reconciles a provider subscription event onto the
// tenant's subscription: an existing row matched by provider id is
// refreshed, an open row without provider linkage is claimed, and a
// tenant with no open subscription gets one on the default plan.
func (s *Subscriptions) UpsertFromEvent(ctx context.Context, providerName string, ev *Event) (*Subscription, error) {
	now := s.now().UTC()

	sub, err := s.storage.ByProviderID(ctx, providerName, ev.ProviderSubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) && ev.TenantID != "" {
		sub, err = s.storage.CurrentByTenant(ctx, ev.TenantID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			created, cerr := s.StartDefault(ctx, ev.TenantID)
			if cerr != nil {
				return nil, cerr
			}
			sub, err = created, nil
		}
	}
	if err != nil {
		return nil, err
	}

	sub.Provider = providerName
	sub.ProviderSubscriptionID = ev.ProviderSubscriptionID
	if ev.ProviderCustomerID != "" {
		sub.ProviderCustomerID = ev.ProviderCustomerID
	}
	if ev.Status != "" {
		sub.Status = ev.Status
	}
	if ev.Interval != "" {
		sub.Interval = ev.Interval
	}
	if ev.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = ev.CurrentPeriodStart
	}
	if ev.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	}
	sub.UpdatedAt = now

	if err := s.storage.Update(ctx, sub); err != nil {
		return nil, err
	}
	if s.invalidate != nil {
		s.invalidate.InvalidateTenant(ctx, sub.TenantID)
	}
	return sub, nil
}

// RecordPaymentFailure increments the subscription's failure counter and
// returns the updated row.
func (s *Subscriptions) RecordPaymentFailure(ctx context.Context, providerName string, ev *Event) (*Subscription, error) {
	sub, err := s.findForEvent(ctx, providerName, ev)
	if err != nil {
		return nil, err
	}
	sub.PaymentFailureCount++
	sub.Status = StatusPastDue
	sub.UpdatedAt = s.now().UTC()
	if err := s.storage.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordPaymentSuccess clears the failure counter and reactivates the
// subscription.
func (s *Subscriptions) RecordPaymentSuccess(ctx context.Context, providerName string, ev *Event) (*Subscription, error) {
	sub, err := s.findForEvent(ctx, providerName, ev)
	if err != nil {
		return nil, err
	}
	sub.PaymentFailureCount = 0
	if !sub.Status.Terminal() {
		sub.Status = StatusActive
	}
	sub.UpdatedAt = s.now().UTC()
	if err := s.storage.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelFromEvent closes the subscription the provider cancelled.
func (s *Subscriptions) CancelFromEvent(ctx context.Context, providerName string, ev *Event) (*Subscription, error) {
	sub, err := s.findForEvent(ctx, providerName, ev)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sub.Status = StatusCancelled
	sub.CancelledAt = &now
	sub.UpdatedAt = now
	if err := s.storage.Update(ctx, sub); err != nil {
		return nil, err
	}
	if s.invalidate != nil {
		s.invalidate.InvalidateTenant(ctx, sub.TenantID)
	}
	return sub, nil
}

func (s *Subscriptions) findForEvent(ctx context.Context, providerName string, ev *Event) (*Subscription, error) {
	sub, err := s.storage.ByProviderID(ctx, providerName, ev.ProviderSubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) && ev.TenantID != "" {
		return s.storage.CurrentByTenant(ctx, ev.TenantID)
	}
	return sub, err
}
