package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/pg"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const (
	tenantsTable         = "tenants"
	lifecycleEventsTable = "lifecycle_events"
	tenantModulesTable   = "tenant_modules"
)

// Tables whose rows belong to one tenant, purged child-first so foreign
// keys never block the sweep. Lifecycle events stay behind for audit.
var tenantDataTables = []string{
	"employees",
	"positions",
	"departments",
	"tenant_modules",
	"role_permissions",
	"usage_metrics",
	"alerts",
	"subscriptions",
	"users",
}

// tenantColumns is the full select list; the serial id is cast to text so
// it scans straight into the string field.
var tenantColumns = []string{
	"id::text", "name", "COALESCE(domain, '')", "status", "admin_email", "admin_name",
	"COALESCE(provider_customer_ids, '{}'::jsonb)", "max_employees", "subscription_active",
	"COALESCE(failure_reason, '')", "COALESCE(idempotency_token, '')",
	"provisioned_at", "activated_at", "suspended_at", "grace_period_ends_at",
	"cancelled_at", "scheduled_deletion_at", "version", "created_at", "updated_at",
}

// PgStorage persists tenants in Postgres. The tenants and lifecycle_events
// tables are control-plane tables outside the tenant scope, so the guarded
// builders run them without a tenant context; the per-tenant tables
// (modules, purge, export) go through scoped statements or raw SQL on the
// underlying handle.
type PgStorage struct {
	db    tenantdb.DB
	store *tenantdb.Store
}

func NewPgStorage(db tenantdb.DB, registry *tenantdb.Registry) *PgStorage {
	return &PgStorage{db: db, store: tenantdb.New(db, registry)}
}

func (s *PgStorage) Insert(ctx context.Context, t *Tenant, ev *LifecycleEvent) error {
	err := s.store.InTx(ctx, func(tx *tenantdb.Store) error {
		ids, err := marshalProviderIDs(t.ProviderCustomerIDs)
		if err != nil {
			return err
		}
		row, err := tx.InsertRow(ctx, tx.
			InsertInto(tenantsTable).
			Set("name", t.Name).
			Set("domain", nullable(t.Domain)).
			Set("status", t.Status).
			Set("admin_email", t.AdminEmail).
			Set("admin_name", t.AdminName).
			Set("provider_customer_ids", ids).
			Set("max_employees", t.MaxEmployees).
			Set("subscription_active", t.SubscriptionActive).
			Set("failure_reason", nullable(t.FailureReason)).
			Set("idempotency_token", nullable(t.IdempotencyToken)).
			Set("version", int64(1)).
			Set("created_at", t.CreatedAt).
			Set("updated_at", t.UpdatedAt).
			Returning("id::text"))
		if err != nil {
			return err
		}
		if err := row.Scan(&t.ID); err != nil {
			return err
		}
		t.Version = 1

		ev.TenantID = t.ID
		return insertEvent(ctx, tx, ev)
	})
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateTenant
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) ByID(ctx context.Context, id string) (*Tenant, error) {
	return s.one(ctx, "id::text = ?", id)
}

func (s *PgStorage) ByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.one(ctx, "domain = lower(?)", domain)
}

func (s *PgStorage) ByIdempotencyToken(ctx context.Context, token string) (*Tenant, error) {
	return s.one(ctx, "idempotency_token = ?", token)
}

func (s *PgStorage) one(ctx context.Context, expr string, arg any) (*Tenant, error) {
	row, err := s.store.QueryRow(ctx, s.store.
		Select(tenantColumns...).
		From(tenantsTable).
		Where(expr, arg))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return t, nil
}

func (s *PgStorage) List(ctx context.Context, f Filter) ([]Tenant, error) {
	b := s.store.
		Select(tenantColumns...).
		From(tenantsTable).
		OrderBy("created_at DESC")
	if f.Status != "" {
		b = b.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		b = b.Where("(name ILIKE ? OR domain ILIKE ? OR admin_email ILIKE ?)",
			pattern, pattern, pattern)
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	if f.Offset > 0 {
		b = b.Offset(f.Offset)
	}
	return s.list(ctx, b)
}

func (s *PgStorage) ListByStatus(ctx context.Context, status Status, limit int) ([]Tenant, error) {
	b := s.store.
		Select(tenantColumns...).
		From(tenantsTable).
		Where("status = ?", status).
		OrderBy("created_at")
	if limit > 0 {
		b = b.Limit(limit)
	}
	return s.list(ctx, b)
}

func (s *PgStorage) list(ctx context.Context, b *tenantdb.SelectBuilder) ([]Tenant, error) {
	rows, err := s.store.Query(ctx, b)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PgStorage) ApplyTransition(ctx context.Context, t *Tenant, ev *LifecycleEvent) error {
	err := s.store.InTx(ctx, func(tx *tenantdb.Store) error {
		ids, err := marshalProviderIDs(t.ProviderCustomerIDs)
		if err != nil {
			return err
		}
		affected, err := tx.ExecAffected(ctx, tx.
			Update(tenantsTable).
			Set("status", t.Status).
			Set("provider_customer_ids", ids).
			Set("max_employees", t.MaxEmployees).
			Set("subscription_active", t.SubscriptionActive).
			Set("failure_reason", nullable(t.FailureReason)).
			Set("provisioned_at", t.ProvisionedAt).
			Set("activated_at", t.ActivatedAt).
			Set("suspended_at", t.SuspendedAt).
			Set("grace_period_ends_at", t.GracePeriodEndsAt).
			Set("cancelled_at", t.CancelledAt).
			Set("scheduled_deletion_at", t.ScheduledDeletionAt).
			Set("updated_at", t.UpdatedAt).
			SetExpr("version", "version + 1").
			Where("id::text = ?", t.ID).
			Where("version = ?", t.Version))
		if err != nil {
			return err
		}
		if affected == 0 {
			row, err := tx.QueryRow(ctx, tx.
				Select("count(*)").
				From(tenantsTable).
				Where("id::text = ?", t.ID))
			if err != nil {
				return err
			}
			var n int
			if err := row.Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				return ErrVersionConflict
			}
			return ErrTenantNotFound
		}
		return insertEvent(ctx, tx, ev)
	})
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrTenantNotFound) {
		return err
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	t.Version++
	return nil
}

func (s *PgStorage) RecordEvent(ctx context.Context, ev *LifecycleEvent) error {
	if err := insertEvent(ctx, s.store, ev); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) ListEvents(ctx context.Context, tenantID string, limit int) ([]LifecycleEvent, error) {
	b := s.store.
		Select("id", "tenant_id", "event_type",
			"COALESCE(previous_status, '')", "COALESCE(new_status, '')",
			"COALESCE(reason, '')", "COALESCE(triggered_by, '')",
			"metadata", "event_date").
		From(lifecycleEventsTable).
		Where("tenant_id = ?", tenantID).
		OrderBy("event_date DESC")
	if limit > 0 {
		b = b.Limit(limit)
	}
	rows, err := s.store.Query(ctx, b)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []LifecycleEvent
	for rows.Next() {
		var ev LifecycleEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Type,
			&ev.PreviousStatus, &ev.NewStatus, &ev.Reason, &ev.TriggeredBy,
			&meta, &ev.EventDate); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, errors.Join(ErrStorageFailed, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PgStorage) SeedModules(ctx context.Context, tenantID string, modules []Module) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	for _, m := range modules {
		_, err := s.store.Insert(sctx, s.store.
			InsertInto(tenantModulesTable).
			Set("id", uuid.New()).
			Set("key", m.Key).
			Set("name", m.Name).
			Set("nav_order", m.NavOrder).
			Set("enabled", m.Enabled).
			OnConflictDoNothing("tenant_id", "key"))
		if err != nil {
			return errors.Join(ErrStorageFailed, err)
		}
	}
	return nil
}

func (s *PgStorage) ListModules(ctx context.Context, tenantID string) ([]Module, error) {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	rows, err := s.store.Query(sctx, s.store.
		Select("id", "key", "name", "nav_order", "enabled", "tenant_id").
		From(tenantModulesTable).
		OrderBy("nav_order"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Key, &m.Name, &m.NavOrder, &m.Enabled, &m.TenantID); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PgStorage) PurgeTenantData(ctx context.Context, tenantID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range tenantDataTables {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", table), tenantID); err != nil {
			return errors.Join(ErrStorageFailed, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) ExportData(ctx context.Context, tenantID string) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(tenantDataTables))
	for _, table := range tenantDataTables {
		// The builder has no row-to-JSON projection, so the export reads
		// each table as jsonb documents directly.
		rows, err := s.db.Query(ctx,
			fmt.Sprintf("SELECT to_jsonb(t) FROM %s t WHERE t.tenant_id = $1", table), tenantID)
		if err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		docs, err := collectJSONRows(rows)
		if err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out[table] = docs
	}
	return out, nil
}

func collectJSONRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func insertEvent(ctx context.Context, st *tenantdb.Store, ev *LifecycleEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	var meta []byte
	if ev.Metadata != nil {
		var err error
		meta, err = json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := st.Insert(ctx, st.
		InsertInto(lifecycleEventsTable).
		Set("id", ev.ID).
		Set("tenant_id", ev.TenantID).
		Set("event_type", ev.Type).
		Set("previous_status", nullable(string(ev.PreviousStatus))).
		Set("new_status", nullable(string(ev.NewStatus))).
		Set("reason", nullable(ev.Reason)).
		Set("triggered_by", nullable(ev.TriggeredBy)).
		Set("metadata", meta).
		Set("event_date", ev.EventDate))
	return err
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var ids []byte
	if err := row.Scan(
		&t.ID, &t.Name, &t.Domain, &t.Status, &t.AdminEmail, &t.AdminName,
		&ids, &t.MaxEmployees, &t.SubscriptionActive,
		&t.FailureReason, &t.IdempotencyToken,
		&t.ProvisionedAt, &t.ActivatedAt, &t.SuspendedAt, &t.GracePeriodEndsAt,
		&t.CancelledAt, &t.ScheduledDeletionAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &t.ProviderCustomerIDs); err != nil {
			return nil, err
		}
		if len(t.ProviderCustomerIDs) == 0 {
			t.ProviderCustomerIDs = nil
		}
	}
	return &t, nil
}

func marshalProviderIDs(ids map[string]string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return json.Marshal(ids)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
