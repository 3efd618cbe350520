package operator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/modules/usage"
)

// TenantAdmin is the slice of the tenants service the operator surface
// drives.
type TenantAdmin interface {
	Get(ctx context.Context, tenantID string) (*tenants.Tenant, error)
	List(ctx context.Context, f tenants.Filter) ([]tenants.Tenant, error)
	Events(ctx context.Context, tenantID string, limit int) ([]tenants.LifecycleEvent, error)
	Modules(ctx context.Context, tenantID string) ([]tenants.Module, error)
	Suspend(ctx context.Context, tenantID, reason, triggeredBy string) error
	Resume(ctx context.Context, tenantID, triggeredBy string) error
	Cancel(ctx context.Context, tenantID, reason, triggeredBy string) error
	RetryProvisioning(ctx context.Context, tenantID, triggeredBy string) (*tenants.Tenant, error)
	Export(ctx context.Context, tenantID string) (string, error)
	ExportBundle(ctx context.Context, tenantID string) ([]byte, error)
}

// UsageSource is the slice of the usage service the dashboard reads.
type UsageSource interface {
	Current(ctx context.Context, tenantID string) (*usage.Metric, error)
	CurrentPeriodMetrics(ctx context.Context) ([]usage.Metric, error)
	Trends(ctx context.Context) (usage.Trend, error)
}

// AlertSource is the slice of the alert hub the operator surface uses.
type AlertSource interface {
	List(ctx context.Context, f alerts.Filter) ([]alerts.Alert, error)
	SeverityHistogram(ctx context.Context) (map[alerts.Severity]int, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
	Resolve(ctx context.Context, id uuid.UUID) error
}

// Service assembles the operator surface over the other modules.
type Service struct {
	tenants TenantAdmin
	usage   UsageSource
	alerts  AlertSource
	audits  AuditStorage
	rescan  func(ctx context.Context) error
	logger  *slog.Logger
}

type ServiceOption func(*Service)

// WithRescanTask wires the usage scan task behind the rescan endpoint.
func WithRescanTask(task func(ctx context.Context) error) ServiceOption {
	return func(s *Service) { s.rescan = task }
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(tenantAdmin TenantAdmin, usageSrc UsageSource, alertSrc AlertSource, audits AuditStorage, opts ...ServiceOption) *Service {
	s := &Service{
		tenants: tenantAdmin,
		usage:   usageSrc,
		alerts:  alertSrc,
		audits:  audits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TenantSummary is a listing row with the tenant's current-period usage
// denormalized in.
type TenantSummary struct {
	Tenant tenants.Tenant `json:"tenant"`
	Usage  *usage.Metric  `json:"usage,omitempty"`
}

// ListTenants returns a filtered page of tenants with their usage rows.
func (s *Service) ListTenants(ctx context.Context, f tenants.Filter) ([]TenantSummary, error) {
	rows, err := s.tenants.List(ctx, f)
	if err != nil {
		return nil, err
	}
	metrics, err := s.usage.CurrentPeriodMetrics(ctx)
	if err != nil {
		return nil, err
	}
	byTenant := make(map[string]*usage.Metric, len(metrics))
	for i := range metrics {
		byTenant[metrics[i].TenantID] = &metrics[i]
	}

	out := make([]TenantSummary, 0, len(rows))
	for _, t := range rows {
		out = append(out, TenantSummary{Tenant: t, Usage: byTenant[t.ID]})
	}
	return out, nil
}

// TenantDetail is the full operator view of one tenant.
type TenantDetail struct {
	Tenant       *tenants.Tenant          `json:"tenant"`
	Events       []tenants.LifecycleEvent `json:"events"`
	Modules      []tenants.Module         `json:"modules"`
	Usage        *usage.Metric            `json:"usage,omitempty"`
	ActiveAlerts []alerts.Alert           `json:"active_alerts"`
}

const detailEventLimit = 20

func (s *Service) TenantDetail(ctx context.Context, tenantID string) (*TenantDetail, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	events, err := s.tenants.Events(ctx, tenantID, detailEventLimit)
	if err != nil {
		return nil, err
	}
	modules, err := s.tenants.Modules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	active, err := s.alerts.List(ctx, alerts.Filter{TenantID: tenantID, Status: alerts.StatusActive})
	if err != nil {
		return nil, err
	}

	detail := &TenantDetail{Tenant: t, Events: events, Modules: modules, ActiveAlerts: active}
	// Tenants that never activated have no usage row; that is not an error.
	if m, err := s.usage.Current(ctx, tenantID); err == nil {
		detail.Usage = m
	}
	return detail, nil
}

// Housekeeping. All transitions are attributed to the acting operator.

func (s *Service) SuspendTenant(ctx context.Context, tenantID, reason, operatorID string) error {
	return s.tenants.Suspend(ctx, tenantID, reason, operatorRef(operatorID))
}

func (s *Service) ResumeTenant(ctx context.Context, tenantID, operatorID string) error {
	return s.tenants.Resume(ctx, tenantID, operatorRef(operatorID))
}

func (s *Service) CancelTenant(ctx context.Context, tenantID, reason, operatorID string) error {
	return s.tenants.Cancel(ctx, tenantID, reason, operatorRef(operatorID))
}

func (s *Service) RetryProvisioning(ctx context.Context, tenantID, operatorID string) (*tenants.Tenant, error) {
	return s.tenants.RetryProvisioning(ctx, tenantID, operatorRef(operatorID))
}

// Rescan triggers the usage scan outside its schedule.
func (s *Service) Rescan(ctx context.Context) error {
	if s.rescan == nil {
		return ErrRescanUnavailable
	}
	return s.rescan(ctx)
}

// CreateExport builds and stores a fresh archive bundle, returning its key.
func (s *Service) CreateExport(ctx context.Context, tenantID string) (string, error) {
	return s.tenants.Export(ctx, tenantID)
}

// FetchExport returns the stored archive bundle.
func (s *Service) FetchExport(ctx context.Context, tenantID string) ([]byte, error) {
	return s.tenants.ExportBundle(ctx, tenantID)
}

func (s *Service) AcknowledgeAlert(ctx context.Context, id uuid.UUID) error {
	return s.alerts.Acknowledge(ctx, id)
}

func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID) error {
	return s.alerts.Resolve(ctx, id)
}

func (s *Service) ListAlerts(ctx context.Context, f alerts.Filter) ([]alerts.Alert, error) {
	return s.alerts.List(ctx, f)
}

func (s *Service) ListAudits(ctx context.Context, f AuditFilter) ([]AdminAudit, error) {
	return s.audits.List(ctx, f)
}

func operatorRef(operatorID string) string {
	if operatorID == "" {
		return "operator"
	}
	return "operator:" + operatorID
}
