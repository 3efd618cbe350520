package tenants

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/billing"
	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
)

// SubscriptionStarter opens the default-plan subscription for a fresh
// tenant. The billing Subscriptions service satisfies it.
type SubscriptionStarter interface {
	StartDefault(ctx context.Context, tenantID string) (*billing.Subscription, error)
}

// PlanSource resolves the default plan, whose employee cap seeds the
// tenant row. The billing Catalog satisfies it.
type PlanSource interface {
	DefaultPlan(ctx context.Context) (billing.Plan, error)
}

// AdminProvisioner creates or links the tenant admin account and mints
// the activation token for the invitation email. The identity Auth
// service satisfies it.
type AdminProvisioner interface {
	EnsureUser(ctx context.Context, email, name string, role identity.Role, tenantID string) (*identity.User, bool, error)
	GenerateResetToken(userID uuid.UUID) (string, error)
}

// Seeder installs a module's tenant defaults. Directory and permission
// seeding both run through it; every implementation must be idempotent
// because failed provisioning runs are retried.
type Seeder interface {
	SeedDefaults(ctx context.Context, tenantID string) error
}

// DefaultModules is the navigation catalog seeded into every new tenant.
func DefaultModules() []Module {
	return []Module{
		{Key: "dashboard", Name: "Dashboard", NavOrder: 1, Enabled: true},
		{Key: "employees", Name: "Employees", NavOrder: 2, Enabled: true},
		{Key: "departments", Name: "Departments", NavOrder: 3, Enabled: true},
		{Key: "positions", Name: "Positions", NavOrder: 4, Enabled: true},
		{Key: "reports", Name: "Reports", NavOrder: 5, Enabled: true},
		{Key: "settings", Name: "Settings", NavOrder: 6, Enabled: true},
	}
}

// Provisioner turns tenants in the Provisioning status into working
// workspaces: module catalog, seeded defaults, default-plan subscription,
// admin account and invitation email, then the Active transition. Any
// step failing parks the tenant in ProvisioningFailed with the reason;
// partial data stays for the retried run.
type Provisioner struct {
	svc           *Service
	subscriptions SubscriptionStarter
	plans         PlanSource
	admin         AdminProvisioner
	seeders       []Seeder
	email         mailer.EmailSender
	logger        *slog.Logger
}

type ProvisionerOption func(*Provisioner)

func WithSeeders(seeders ...Seeder) ProvisionerOption {
	return func(p *Provisioner) { p.seeders = append(p.seeders, seeders...) }
}

func WithInvitationSender(sender mailer.EmailSender) ProvisionerOption {
	return func(p *Provisioner) { p.email = sender }
}

func WithProvisionerLogger(l *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) { p.logger = l }
}

func NewProvisioner(svc *Service, subscriptions SubscriptionStarter, plans PlanSource, admin AdminProvisioner, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		svc:           svc,
		subscriptions: subscriptions,
		plans:         plans,
		admin:         admin,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one batch of provisioning tenants. It is the poller task:
// per-tenant failures are recorded on the tenant and never abort the
// batch.
func (p *Provisioner) Run(ctx context.Context) error {
	rows, err := p.svc.storage.ListByStatus(ctx, StatusProvisioning, p.svc.cfg.ProvisionBatch)
	if err != nil {
		return err
	}
	for i := range rows {
		t := &rows[i]
		if err := p.provision(ctx, t); err != nil {
			p.fail(ctx, t, err)
		}
	}
	return nil
}

func (p *Provisioner) provision(ctx context.Context, t *Tenant) error {
	if err := p.svc.storage.SeedModules(ctx, t.ID, DefaultModules()); err != nil {
		return err
	}
	for _, seeder := range p.seeders {
		if err := seeder.SeedDefaults(ctx, t.ID); err != nil {
			return err
		}
	}

	if _, err := p.subscriptions.StartDefault(ctx, t.ID); err != nil &&
		!errors.Is(err, billing.ErrDuplicateSubscription) {
		return err
	}
	plan, err := p.plans.DefaultPlan(ctx)
	if err != nil {
		return err
	}

	user, _, err := p.admin.EnsureUser(ctx, t.AdminEmail, t.AdminName, identity.RoleAdmin, t.ID)
	if err != nil {
		return err
	}
	p.invite(ctx, t, user)

	_, err = p.svc.applyTransition(ctx, t.ID, fireActivate, func(t *Tenant) *LifecycleEvent {
		now := p.svc.now().UTC()
		t.ProvisionedAt = &now
		t.ActivatedAt = &now
		t.SubscriptionActive = true
		t.MaxEmployees = plan.MaxEmployees
		t.FailureReason = ""
		return &LifecycleEvent{Type: EventProvisioningCompleted, TriggeredBy: "provisioner"}
	})
	if err != nil {
		return err
	}

	if err := p.svc.storage.RecordEvent(ctx, &LifecycleEvent{
		TenantID:    t.ID,
		Type:        EventActivated,
		TriggeredBy: "provisioner",
		EventDate:   p.svc.now().UTC(),
	}); err != nil {
		p.logger.ErrorContext(ctx, "recording activation event failed",
			slog.String("tenant_id", t.ID), slog.Any("error", err))
	}

	p.logger.InfoContext(ctx, "tenant provisioned",
		slog.String("tenant_id", t.ID), slog.String("domain", t.Domain))
	return nil
}

// invite emails the activation link. Every provisioned tenant gets one,
// including those whose admin already had an account: the token doubles
// as the way into the new workspace. Delivery is best effort, the admin
// can always fall back to the password reset flow.
func (p *Provisioner) invite(ctx context.Context, t *Tenant, user *identity.User) {
	if p.email == nil {
		return
	}
	token, err := p.admin.GenerateResetToken(user.ID)
	if err != nil {
		p.logger.ErrorContext(ctx, "activation token failed",
			slog.String("tenant_id", t.ID), slog.Any("error", err))
		return
	}
	activationURL := p.svc.cfg.ActivationBaseURL + "?token=" + url.QueryEscape(token)
	if err := p.email.SendEmail(ctx, mailer.Invitation(t.AdminEmail, t.Name, activationURL)); err != nil {
		p.logger.ErrorContext(ctx, "invitation email failed",
			slog.String("tenant_id", t.ID), slog.Any("error", err))
	}
}

func (p *Provisioner) fail(ctx context.Context, t *Tenant, cause error) {
	p.logger.ErrorContext(ctx, "tenant provisioning failed",
		slog.String("tenant_id", t.ID), slog.Any("error", cause))

	_, err := p.svc.applyTransition(ctx, t.ID, fireFailProvision, func(t *Tenant) *LifecycleEvent {
		t.FailureReason = cause.Error()
		return &LifecycleEvent{
			Type:        EventProvisioningFailed,
			Reason:      cause.Error(),
			TriggeredBy: "provisioner",
		}
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "marking provisioning failure failed",
			slog.String("tenant_id", t.ID), slog.Any("error", err))
	}
}
