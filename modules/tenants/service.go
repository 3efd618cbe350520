package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/usage"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
	"github.com/dmitrymomot/crewplane/pkg/slug"
	"github.com/dmitrymomot/crewplane/pkg/statemachine"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// AlertSink is the slice of the alert hub the lifecycle needs.
type AlertSink interface {
	Raise(ctx context.Context, p alerts.RaiseParams) (*alerts.Alert, bool, error)
	ResolveMatching(ctx context.Context, tenantID string, typ alerts.Type, resource string) error
}

// Archive stores pre-deletion export bundles. The S3 archive store
// satisfies it.
type Archive interface {
	PutBundle(ctx context.Context, tenantID string, data []byte) (string, error)
	GetBundle(ctx context.Context, tenantID string) ([]byte, error)
}

// Service drives the tenant lifecycle. It backs the request-path tenant
// Provider, the billing lifecycle hooks and the usage scanner's tenant
// listing.
type Service struct {
	storage Storage
	cfg     Config
	cache   tenant.Cache
	alerts  AlertSink
	email   mailer.EmailSender
	archive Archive
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithCache(c tenant.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithAlerts(sink AlertSink) Option {
	return func(s *Service) { s.alerts = sink }
}

func WithEmailSender(sender mailer.EmailSender) Option {
	return func(s *Service) { s.email = sender }
}

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, for grace-period and retention tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(storage Storage, cfg Config, opts ...Option) *Service {
	if cfg.GracePeriodDays <= 0 {
		cfg.GracePeriodDays = 30
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	s := &Service{
		storage: storage,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupParams is the public signup payload. IdempotencyToken makes
// retried submissions return the already-created tenant instead of a
// duplicate.
type SignupParams struct {
	Name             string `json:"name"`
	Domain           string `json:"domain,omitempty"`
	AdminEmail       string `json:"admin_email"`
	AdminName        string `json:"admin_name"`
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

// Signup creates a tenant in the Provisioning status and records the
// Created event. The provisioning poller picks the row up from there.
func (s *Service) Signup(ctx context.Context, p SignupParams) (*Tenant, error) {
	if p.IdempotencyToken != "" {
		if existing, err := s.storage.ByIdempotencyToken(ctx, p.IdempotencyToken); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
	}

	domain := strings.ToLower(strings.TrimSpace(p.Domain))
	if domain == "" {
		domain = slug.Make(p.Name, slug.MaxLength(63))
	}

	now := s.now().UTC()
	t := &Tenant{
		Name:             strings.TrimSpace(p.Name),
		Domain:           domain,
		Status:           StatusProvisioning,
		AdminEmail:       strings.ToLower(strings.TrimSpace(p.AdminEmail)),
		AdminName:        strings.TrimSpace(p.AdminName),
		IdempotencyToken: p.IdempotencyToken,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	ev := &LifecycleEvent{
		Type:        EventCreated,
		NewStatus:   StatusProvisioning,
		TriggeredBy: "signup",
		EventDate:   now,
	}
	if err := s.storage.Insert(ctx, t, ev); err != nil {
		if errors.Is(err, ErrDuplicateTenant) && p.IdempotencyToken != "" {
			// Lost a concurrent retry of the same submission; the winner's
			// row is the answer. A miss means the collision was a genuine
			// name or domain duplicate.
			if existing, ferr := s.storage.ByIdempotencyToken(ctx, p.IdempotencyToken); ferr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "tenant created",
		slog.String("tenant_id", t.ID), slog.String("domain", t.Domain))
	return t, nil
}

// Get returns the full tenant row, for the operator surface.
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.storage.ByID(ctx, tenantID)
}

// List returns tenants matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Tenant, error) {
	return s.storage.List(ctx, f)
}

// Events returns the tenant's lifecycle history, newest first.
func (s *Service) Events(ctx context.Context, tenantID string, limit int) ([]LifecycleEvent, error) {
	return s.storage.ListEvents(ctx, tenantID, limit)
}

// Modules returns the tenant's seeded module catalog.
func (s *Service) Modules(ctx context.Context, tenantID string) ([]Module, error) {
	return s.storage.ListModules(ctx, tenantID)
}

// Suspend moves an Active tenant to Suspended, opens the grace period,
// raises a suspension alert and emails the admin. It satisfies the
// billing Lifecycle and the usage scanner's Suspender.
func (s *Service) Suspend(ctx context.Context, tenantID, reason, triggeredBy string) error {
	t, err := s.applyTransition(ctx, tenantID, fireSuspend, func(t *Tenant) *LifecycleEvent {
		now := s.now().UTC()
		grace := now.AddDate(0, 0, s.cfg.GracePeriodDays)
		t.SuspendedAt = &now
		t.GracePeriodEndsAt = &grace
		t.SubscriptionActive = false
		return &LifecycleEvent{Type: EventSuspended, Reason: reason, TriggeredBy: triggeredBy}
	})
	if err != nil {
		return err
	}

	if s.alerts != nil {
		if _, _, err := s.alerts.Raise(ctx, alerts.RaiseParams{
			TenantID: tenantID,
			Type:     alerts.TypeSuspension,
			Resource: "tenant",
			Severity: alerts.SeverityHigh,
			Message:  reason,
		}); err != nil {
			s.logger.ErrorContext(ctx, "suspension alert failed",
				slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	if s.email != nil && t.GracePeriodEndsAt != nil {
		if err := s.email.SendEmail(ctx,
			mailer.SuspensionNotice(t.AdminEmail, t.Name, reason, *t.GracePeriodEndsAt)); err != nil {
			s.logger.ErrorContext(ctx, "suspension email failed",
				slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	return nil
}

// Resume moves a Suspended tenant back to Active. Once the grace period
// has elapsed only an operator may resume; automated callers get
// ErrGraceExpired.
func (s *Service) Resume(ctx context.Context, tenantID, triggeredBy string) error {
	t, err := s.storage.ByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if !isOperator(triggeredBy) &&
		t.GracePeriodEndsAt != nil && s.now().UTC().After(*t.GracePeriodEndsAt) {
		return ErrGraceExpired
	}
	return s.resume(ctx, tenantID, triggeredBy)
}

func (s *Service) resume(ctx context.Context, tenantID, triggeredBy string) error {
	_, err := s.applyTransition(ctx, tenantID, fireResume, func(t *Tenant) *LifecycleEvent {
		t.SuspendedAt = nil
		t.GracePeriodEndsAt = nil
		t.SubscriptionActive = true
		return &LifecycleEvent{Type: EventResumed, TriggeredBy: triggeredBy}
	})
	if err != nil {
		return err
	}
	if s.alerts != nil {
		if err := s.alerts.ResolveMatching(ctx, tenantID, alerts.TypeSuspension, "tenant"); err != nil {
			s.logger.ErrorContext(ctx, "resolving suspension alert failed",
				slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	return nil
}

// Cancel moves an Active or Suspended tenant to Cancelled and schedules
// deletion after the retention window. Data stays readable until the
// sweep picks the tenant up.
func (s *Service) Cancel(ctx context.Context, tenantID, reason, triggeredBy string) error {
	_, err := s.applyTransition(ctx, tenantID, fireCancel, func(t *Tenant) *LifecycleEvent {
		now := s.now().UTC()
		deletion := now.AddDate(0, 0, s.cfg.RetentionDays)
		t.CancelledAt = &now
		t.ScheduledDeletionAt = &deletion
		t.SubscriptionActive = false
		return &LifecycleEvent{Type: EventCancelled, Reason: reason, TriggeredBy: triggeredBy}
	})
	return err
}

// Activate handles the billing-side activation signal. It is tolerant by
// design: an already-Active tenant is a no-op, a Suspended one is resumed
// (payment recovered), and a tenant still provisioning is left to the
// provisioner.
func (s *Service) Activate(ctx context.Context, tenantID, triggeredBy string) error {
	t, err := s.storage.ByID(ctx, tenantID)
	if err != nil {
		return err
	}
	switch t.Status {
	case StatusSuspended:
		return s.resume(ctx, tenantID, triggeredBy)
	default:
		return nil
	}
}

// RecordPlanChange appends the Upgraded or Downgraded event. The
// subscription and cap changes themselves are billing writes.
func (s *Service) RecordPlanChange(ctx context.Context, tenantID, fromPlan, toPlan string, upgrade bool, triggeredBy string) error {
	typ := EventDowngraded
	if upgrade {
		typ = EventUpgraded
	}
	return s.storage.RecordEvent(ctx, &LifecycleEvent{
		TenantID:    tenantID,
		Type:        typ,
		TriggeredBy: triggeredBy,
		Metadata:    map[string]any{"from_plan": fromPlan, "to_plan": toPlan},
		EventDate:   s.now().UTC(),
	})
}

// RecordPaymentFailure appends the PaymentFailed event without touching
// the status; repeated failures escalate to Suspend on the billing side.
func (s *Service) RecordPaymentFailure(ctx context.Context, tenantID, reason string) error {
	return s.storage.RecordEvent(ctx, &LifecycleEvent{
		TenantID:  tenantID,
		Type:      EventPaymentFailed,
		Reason:    reason,
		EventDate: s.now().UTC(),
	})
}

// RetryProvisioning puts a failed tenant back into Provisioning so the
// poller picks it up again.
func (s *Service) RetryProvisioning(ctx context.Context, tenantID, triggeredBy string) (*Tenant, error) {
	return s.applyTransition(ctx, tenantID, fireRetryProvision, func(t *Tenant) *LifecycleEvent {
		t.FailureReason = ""
		// The event vocabulary has no dedicated retry entry; the reason
		// keeps the history readable.
		return &LifecycleEvent{
			Type:        EventCreated,
			Reason:      "provisioning retried",
			TriggeredBy: triggeredBy,
		}
	})
}

// Export collects every tenant-scoped row into a JSON bundle and stores
// it in the archive. It returns the archive key.
func (s *Service) Export(ctx context.Context, tenantID string) (string, error) {
	if s.archive == nil {
		return "", errors.New("tenants: no archive configured")
	}
	t, err := s.storage.ByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	events, err := s.storage.ListEvents(ctx, tenantID, 0)
	if err != nil {
		return "", err
	}
	data, err := s.storage.ExportData(ctx, tenantID)
	if err != nil {
		return "", err
	}
	bundle, err := marshalBundle(t, events, data, s.now().UTC())
	if err != nil {
		return "", err
	}
	return s.archive.PutBundle(ctx, tenantID, bundle)
}

// ExportBundle fetches a previously stored bundle from the archive.
func (s *Service) ExportBundle(ctx context.Context, tenantID string) ([]byte, error) {
	if s.archive == nil {
		return nil, errors.New("tenants: no archive configured")
	}
	return s.archive.GetBundle(ctx, tenantID)
}

// GetByID implements the resolver Provider. Deleted tenants do not
// resolve.
func (s *Service) GetByID(ctx context.Context, id string) (*tenant.Info, error) {
	t, err := s.storage.ByID(ctx, id)
	if err != nil {
		return nil, providerErr(err)
	}
	if t.Status == StatusDeleted {
		return nil, tenant.ErrNotFound
	}
	return toInfo(t), nil
}

// GetByDomain implements the resolver Provider.
func (s *Service) GetByDomain(ctx context.Context, domain string) (*tenant.Info, error) {
	t, err := s.storage.ByDomain(ctx, domain)
	if err != nil {
		return nil, providerErr(err)
	}
	if t.Status == StatusDeleted {
		return nil, tenant.ErrNotFound
	}
	return toInfo(t), nil
}

// AdminContact resolves the tenant admin for billing email.
func (s *Service) AdminContact(ctx context.Context, tenantID string) (string, string, error) {
	t, err := s.storage.ByID(ctx, tenantID)
	if err != nil {
		return "", "", err
	}
	return t.AdminEmail, t.AdminName, nil
}

// InvalidateTenant drops the tenant's cached snapshot. Billing calls it
// after writes that change what the snapshot carries.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	domain := ""
	if t, err := s.storage.ByID(ctx, tenantID); err == nil {
		domain = t.Domain
	}
	tenant.Invalidate(ctx, s.cache, tenantID, domain)
}

// ListActiveTenants feeds the usage scanner.
func (s *Service) ListActiveTenants(ctx context.Context) ([]usage.TenantRef, error) {
	rows, err := s.storage.ListByStatus(ctx, StatusActive, 0)
	if err != nil {
		return nil, err
	}
	out := make([]usage.TenantRef, 0, len(rows))
	for _, t := range rows {
		out = append(out, usage.TenantRef{ID: t.ID, Name: t.Name, AdminEmail: t.AdminEmail})
	}
	return out, nil
}

// applyTransition re-reads the row, fires the machine, lets mutate adjust
// the lifecycle fields and build the event, and writes both atomically.
// One retry absorbs a concurrent version bump.
func (s *Service) applyTransition(ctx context.Context, tenantID string, fire statemachine.StringEvent, mutate func(t *Tenant) *LifecycleEvent) (*Tenant, error) {
	for attempt := 0; attempt < 2; attempt++ {
		t, err := s.storage.ByID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		next, err := transition(ctx, t.Status, fire)
		if err != nil {
			return nil, err
		}

		prev := t.Status
		now := s.now().UTC()
		t.Status = next
		t.UpdatedAt = now

		ev := mutate(t)
		ev.TenantID = t.ID
		ev.PreviousStatus = prev
		ev.NewStatus = next
		if ev.EventDate.IsZero() {
			ev.EventDate = now
		}

		err = s.storage.ApplyTransition(ctx, t, ev)
		if errors.Is(err, ErrVersionConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidate(ctx, t)
		s.logger.InfoContext(ctx, "tenant status changed",
			slog.String("tenant_id", t.ID),
			slog.String("from", string(prev)),
			slog.String("to", string(next)),
			slog.String("event", string(ev.Type)))
		return t, nil
	}
	return nil, ErrVersionConflict
}

func (s *Service) invalidate(ctx context.Context, t *Tenant) {
	if s.cache == nil {
		return
	}
	tenant.Invalidate(ctx, s.cache, t.ID, t.Domain)
}

// exportBundle is the archived shape: the tenant row, its lifecycle
// history and every tenant-scoped table keyed by table name.
type exportBundle struct {
	ExportedAt time.Time                   `json:"exported_at"`
	Tenant     *Tenant                     `json:"tenant"`
	Events     []LifecycleEvent            `json:"events"`
	Data       map[string][]map[string]any `json:"data"`
}

func marshalBundle(t *Tenant, events []LifecycleEvent, data map[string][]map[string]any, at time.Time) ([]byte, error) {
	return json.Marshal(exportBundle{ExportedAt: at, Tenant: t, Events: events, Data: data})
}

func isOperator(triggeredBy string) bool {
	return strings.HasPrefix(triggeredBy, "operator")
}

func providerErr(err error) error {
	if errors.Is(err, ErrTenantNotFound) {
		return tenant.ErrNotFound
	}
	return err
}

func toInfo(t *Tenant) *tenant.Info {
	return &tenant.Info{
		ID:                 t.ID,
		Name:               t.Name,
		Domain:             t.Domain,
		Status:             string(t.Status),
		SubscriptionActive: t.SubscriptionActive,
		MaxEmployees:       t.MaxEmployees,
		CreatedAt:          t.CreatedAt,
	}
}
