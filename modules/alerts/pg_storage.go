package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const alertsTable = "alerts"

// Columns in scan order. Scoped reads append tenant_id explicitly;
// cross-tenant reads get it from the effective_tenant_id alias, which the
// builder places last, so both shapes scan identically.
var alertColumns = []string{
	"id", "subscription_id", "alert_type", "resource",
	"severity", "status", "message", "metadata", "created_at", "updated_at",
}

// PgStorage persists alerts in Postgres through the tenant-scoped store.
// Alerts are raised by background workers that carry no request context,
// so the storage mints the tenant scope from each alert's tenant id;
// operator-facing cross-tenant reads run under an internal bypass scope.
type PgStorage struct {
	store *tenantdb.Store
}

// NewPgStorage creates the Postgres alert storage.
func NewPgStorage(store *tenantdb.Store) *PgStorage {
	return &PgStorage{store: store}
}

func scopedCtx(ctx context.Context, tenantID string) context.Context {
	return tenant.WithContext(ctx, tenant.Context{ID: tenantID})
}

func operatorCtx(ctx context.Context) context.Context {
	return tenant.WithContext(ctx, tenant.Context{ID: tenant.DefaultScope, Bypass: true})
}

func (s *PgStorage) FindActive(ctx context.Context, tenantID string, typ Type, resource string) (*Alert, error) {
	sctx := scopedCtx(ctx, tenantID)
	row, err := s.store.QueryRow(sctx, s.store.
		Select(append(append([]string{}, alertColumns...), "tenant_id")...).
		From(alertsTable).
		Where("alert_type = ?", typ).
		Where("resource = ?", resource).
		Where("status = ?", StatusActive))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanAlert(row)
}

func (s *PgStorage) Insert(ctx context.Context, a *Alert) error {
	var meta []byte
	if a.Metadata != nil {
		var err error
		meta, err = json.Marshal(a.Metadata)
		if err != nil {
			return errors.Join(ErrInvalidAlert, err)
		}
	}

	sctx := scopedCtx(ctx, a.TenantID)
	// The bare ON CONFLICT clause matches the partial unique index over
	// (tenant_id, alert_type, resource) WHERE status = 'active'.
	wrote, err := s.store.Insert(sctx, s.store.
		InsertInto(alertsTable).
		Set("id", a.ID).
		Set("subscription_id", a.SubscriptionID).
		Set("alert_type", a.Type).
		Set("resource", a.Resource).
		Set("severity", a.Severity).
		Set("status", a.Status).
		Set("message", a.Message).
		Set("metadata", meta).
		Set("created_at", a.CreatedAt).
		Set("updated_at", a.UpdatedAt).
		OnConflictDoNothing())
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if !wrote {
		return ErrDuplicate
	}
	return nil
}

func (s *PgStorage) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	octx := operatorCtx(ctx)
	row, err := s.store.QueryRow(octx, s.store.
		Select(alertColumns...).
		From(alertsTable).
		Where("id = ?", id).
		AcrossTenants(""))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanAlert(row)
}

func (s *PgStorage) UpdateDetails(ctx context.Context, id uuid.UUID, severity Severity, message string, metadata map[string]any) error {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return errors.Join(ErrInvalidAlert, err)
		}
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sctx := scopedCtx(ctx, a.TenantID)
	err = s.store.Exec(sctx, s.store.
		Update(alertsTable).
		Set("severity", severity).
		Set("message", message).
		Set("metadata", meta).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id))
	if errors.Is(err, tenantdb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sctx := scopedCtx(ctx, a.TenantID)
	err = s.store.Exec(sctx, s.store.
		Update(alertsTable).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id))
	if errors.Is(err, tenantdb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) List(ctx context.Context, f Filter) ([]Alert, error) {
	var b *tenantdb.SelectBuilder
	var qctx context.Context
	if f.TenantID != "" {
		qctx = scopedCtx(ctx, f.TenantID)
		b = s.store.Select(append(append([]string{}, alertColumns...), "tenant_id")...).From(alertsTable)
	} else {
		qctx = operatorCtx(ctx)
		b = s.store.Select(alertColumns...).From(alertsTable).AcrossTenants("")
	}
	if f.Status != "" {
		b = b.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		b = b.Where("alert_type = ?", f.Type)
	}
	b = b.OrderBy("created_at DESC").Limit(f.Limit).Offset(f.Offset)

	rows, err := s.store.Query(qctx, b)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return out, nil
}

// CountActiveBySeverity counts client-side: active alert volume is
// operator-scale, not tenant-data-scale.
func (s *PgStorage) CountActiveBySeverity(ctx context.Context) (map[Severity]int, error) {
	octx := operatorCtx(ctx)
	rows, err := s.store.Query(octx, s.store.
		Select("severity").
		From(alertsTable).
		Where("status = ?", StatusActive).
		AcrossTenants(""))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	counts := make(map[Severity]int)
	for rows.Next() {
		var sev Severity
		var tenantID string
		if err := rows.Scan(&sev, &tenantID); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		counts[sev]++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return counts, nil
}

func scanAlert(row pgx.Row) (*Alert, error) {
	a, err := scanAlertRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAlertRow(row pgx.Row) (*Alert, error) {
	var a Alert
	var meta []byte
	if err := row.Scan(
		&a.ID, &a.SubscriptionID, &a.Type, &a.Resource,
		&a.Severity, &a.Status, &a.Message, &meta,
		&a.CreatedAt, &a.UpdatedAt, &a.TenantID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
	}
	return &a, nil
}
