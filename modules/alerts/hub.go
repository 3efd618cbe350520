package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Hub raises and manages alerts with the platform-wide dedup guarantee.
type Hub struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// HubOption configures the hub.
type HubOption func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates the alert hub.
func NewHub(storage Storage, opts ...HubOption) *Hub {
	h := &Hub{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RaiseParams describes a new incident.
type RaiseParams struct {
	TenantID       string
	SubscriptionID *uuid.UUID
	Type           Type
	Resource       string
	Severity       Severity
	Message        string
	Metadata       map[string]any
}

// Raise creates an Active alert, or returns the existing one when an
// Active alert with the same (tenant, type, resource) key exists. A
// repeat with a higher severity escalates the existing alert in place,
// keeping its id and created_at so the incident's age survives. The
// returned bool reports whether a new alert was created.
func (h *Hub) Raise(ctx context.Context, p RaiseParams) (*Alert, bool, error) {
	if p.TenantID == "" || p.Type == "" || p.Severity == "" {
		return nil, false, ErrInvalidAlert
	}

	if existing, err := h.storage.FindActive(ctx, p.TenantID, p.Type, p.Resource); err == nil {
		return h.escalate(ctx, existing, p)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := h.now().UTC()
	a := &Alert{
		ID:             uuid.New(),
		TenantID:       p.TenantID,
		SubscriptionID: p.SubscriptionID,
		Type:           p.Type,
		Resource:       p.Resource,
		Severity:       p.Severity,
		Status:         StatusActive,
		Message:        p.Message,
		Metadata:       p.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.storage.Insert(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race; the winner is the alert of record.
			if existing, ferr := h.storage.FindActive(ctx, p.TenantID, p.Type, p.Resource); ferr == nil {
				return h.escalate(ctx, existing, p)
			}
			return nil, false, err
		}
		return nil, false, err
	}

	h.logger.InfoContext(ctx, "alert raised",
		slog.String("alert_id", a.ID.String()),
		slog.String("tenant_id", a.TenantID),
		slog.String("type", string(a.Type)),
		slog.String("severity", string(a.Severity)))
	return a, true, nil
}

// escalate bumps an existing alert when the incoming report outranks it.
// A same-or-lower severity repeat returns the alert untouched.
func (h *Hub) escalate(ctx context.Context, existing *Alert, p RaiseParams) (*Alert, bool, error) {
	if severityRank(p.Severity) <= severityRank(existing.Severity) {
		return existing, false, nil
	}
	if err := h.storage.UpdateDetails(ctx, existing.ID, p.Severity, p.Message, p.Metadata); err != nil {
		return nil, false, err
	}
	existing.Severity = p.Severity
	existing.Message = p.Message
	existing.Metadata = p.Metadata
	existing.UpdatedAt = h.now().UTC()

	h.logger.InfoContext(ctx, "alert escalated",
		slog.String("alert_id", existing.ID.String()),
		slog.String("tenant_id", existing.TenantID),
		slog.String("type", string(existing.Type)),
		slog.String("severity", string(existing.Severity)))
	return existing, false, nil
}

// Acknowledge marks an Active alert as seen by an operator.
func (h *Hub) Acknowledge(ctx context.Context, id uuid.UUID) error {
	a, err := h.storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == StatusResolved {
		return ErrAlreadyResolved
	}
	return h.storage.UpdateStatus(ctx, id, StatusAcknowledged)
}

// Resolve closes an alert.
func (h *Hub) Resolve(ctx context.Context, id uuid.UUID) error {
	if _, err := h.storage.Get(ctx, id); err != nil {
		return err
	}
	return h.storage.UpdateStatus(ctx, id, StatusResolved)
}

// ResolveMatching resolves the Active alert for a dedup key, if any. The
// usage housekeeper calls it when a tenant drops back under limit; a
// missing alert is not an error.
func (h *Hub) ResolveMatching(ctx context.Context, tenantID string, typ Type, resource string) error {
	a, err := h.storage.FindActive(ctx, tenantID, typ, resource)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return h.storage.UpdateStatus(ctx, a.ID, StatusResolved)
}

// List returns alerts matching the filter.
func (h *Hub) List(ctx context.Context, f Filter) ([]Alert, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return h.storage.List(ctx, f)
}

// SeverityHistogram counts Active alerts per severity for the dashboard.
func (h *Hub) SeverityHistogram(ctx context.Context) (map[Severity]int, error) {
	return h.storage.CountActiveBySeverity(ctx)
}
