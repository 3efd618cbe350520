package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
	"github.com/dmitrymomot/crewplane/pkg/worker"
)

// scanDimensions is the order limits are evaluated in per tenant.
var scanDimensions = []Dimension{
	DimensionEmployees, DimensionUsers, DimensionStorage, DimensionAPIDaily,
}

// TenantRef identifies one tenant to the scanner.
type TenantRef struct {
	ID         string
	Name       string
	AdminEmail string
}

// TenantLister enumerates the tenants worth scanning. The tenants module
// backs it with the Active set.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]TenantRef, error)
}

// Suspender asks the lifecycle to suspend a tenant over a hard limit.
type Suspender interface {
	Suspend(ctx context.Context, tenantID, reason, triggeredBy string) error
}

// ScannerConfig tunes the usage scan.
type ScannerConfig struct {
	// SuspendAfter is how long a tenant may stay over a hard limit before
	// the scanner asks for suspension. Zero disables suspension.
	SuspendAfter time.Duration
	// WarnRatio is the cap fraction that triggers the admin warning
	// email. Defaults to 0.9.
	WarnRatio float64
}

const (
	defaultWarnRatio    = 0.9
	highSeverityOverage = 1.5
)

// NewScanTask builds the worker task that evaluates every active
// tenant's usage: overage alerts are raised and resolved through the
// hub, admins get one 90% warning per resource per period, and tenants
// over a hard limit longer than SuspendAfter are suspended.
func NewScanTask(svc *Service, tenants TenantLister, hub *alerts.Hub, suspender Suspender, email mailer.EmailSender, cfg ScannerConfig, logger *slog.Logger) worker.Task {
	if cfg.WarnRatio <= 0 || cfg.WarnRatio >= 1 {
		cfg.WarnRatio = defaultWarnRatio
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context) error {
		refs, err := tenants.ListActiveTenants(ctx)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := scanTenant(ctx, svc, hub, suspender, email, cfg, ref); err != nil {
				logger.ErrorContext(ctx, "usage scan failed for tenant",
					slog.String("tenant_id", ref.ID), slog.Any("error", err))
			}
		}
		return nil
	}
}

func scanTenant(ctx context.Context, svc *Service, hub *alerts.Hub, suspender Suspender, email mailer.EmailSender, cfg ScannerConfig, ref TenantRef) error {
	for _, dim := range scanDimensions {
		res, err := svc.CheckLimit(ctx, ref.ID, dim)
		if err != nil {
			return err
		}
		if res.Unlimited {
			continue
		}

		switch {
		case res.Current > res.Limit:
			if err := handleOverage(ctx, svc, hub, suspender, cfg, ref, res); err != nil {
				return err
			}
		default:
			if err := hub.ResolveMatching(ctx, ref.ID, alerts.TypeOverage, string(dim)); err != nil {
				return err
			}
			if float64(res.Current) >= cfg.WarnRatio*float64(res.Limit) {
				if err := warnAdmin(ctx, svc, email, ref, res); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func handleOverage(ctx context.Context, svc *Service, hub *alerts.Hub, suspender Suspender, cfg ScannerConfig, ref TenantRef, res CheckResult) error {
	severity := alerts.SeverityMedium
	if float64(res.Current) > highSeverityOverage*float64(res.Limit) {
		severity = alerts.SeverityHigh
	}

	a, created, err := hub.Raise(ctx, alerts.RaiseParams{
		TenantID: ref.ID,
		Type:     alerts.TypeOverage,
		Resource: string(res.Dimension),
		Severity: severity,
		Message:  fmt.Sprintf("%s usage %d exceeds limit %d", res.Dimension, res.Current, res.Limit),
		Metadata: map[string]any{"current": res.Current, "limit": res.Limit},
	})
	if err != nil {
		return err
	}

	if !created && suspender != nil && cfg.SuspendAfter > 0 &&
		svc.now().UTC().Sub(a.CreatedAt) > cfg.SuspendAfter {
		reason := fmt.Sprintf("over %s limit since %s", res.Dimension, a.CreatedAt.Format(time.RFC3339))
		return suspender.Suspend(ctx, ref.ID, reason, "usage-scanner")
	}
	return nil
}

func warnAdmin(ctx context.Context, svc *Service, email mailer.EmailSender, ref TenantRef, res CheckResult) error {
	if email == nil || ref.AdminEmail == "" {
		return nil
	}
	first, err := svc.WarnOnce(ctx, ref.ID, res.Dimension)
	if err != nil || !first {
		return err
	}
	return email.SendEmail(ctx, mailer.UsageWarning(
		ref.AdminEmail, ref.Name, string(res.Dimension), res.Current, res.Limit))
}
