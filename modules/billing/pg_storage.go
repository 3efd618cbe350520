package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/pg"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const (
	plansTable         = "plans"
	planFeaturesTable  = "plan_features"
	subscriptionsTable = "subscriptions"
	tenantsTable       = "tenants"
	webhookEventsTable = "webhook_events"
)

// PgPlanStorage reads the plan catalog tables.
type PgPlanStorage struct {
	store *tenantdb.Store
}

func NewPgPlanStorage(store *tenantdb.Store) *PgPlanStorage {
	return &PgPlanStorage{store: store}
}

func (s *PgPlanStorage) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := s.store.Query(ctx, s.store.
		Select("id", "name", "description", "monthly_price_cents",
			"quarterly_price_cents", "yearly_price_cents", "currency",
			"max_employees", "max_users", "max_storage_bytes", "api_limit_per_day",
			"trial_days", "is_public", "is_default", "sort_order").
		From(plansTable).
		OrderBy("sort_order"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.MonthlyPriceCents,
			&p.QuarterlyPriceCents, &p.YearlyPriceCents, &p.Currency,
			&p.MaxEmployees, &p.MaxUsers, &p.MaxStorageBytes, &p.APILimitPerDay,
			&p.TrialDays, &p.IsPublic, &p.IsDefault, &p.SortOrder,
		); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgPlanStorage) ListPlanFeatures(ctx context.Context) ([]PlanFeature, error) {
	rows, err := s.store.Query(ctx, s.store.
		Select("plan_id", "feature_key", "value", "sort_order").
		From(planFeaturesTable).
		OrderBy("plan_id, sort_order"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []PlanFeature
	for rows.Next() {
		var b PlanFeature
		if err := rows.Scan(&b.PlanID, &b.FeatureKey, &b.Value, &b.SortOrder); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Scan order; scoped reads append tenant_id explicitly, cross-tenant
// reads get it last from the effective_tenant_id alias.
var subscriptionColumns = []string{
	"id", "plan_id", "status", "provider", "provider_subscription_id",
	"provider_customer_id", "price_cents", "currency", "billing_interval",
	"current_period_start", "current_period_end", "trial_ends_at",
	"auto_renew", "payment_failure_count", "cancelled_at",
	"created_at", "updated_at",
}

// PgSubscriptionStorage persists subscriptions through the tenant-scoped
// store. Webhook dispatch carries no request context, so the storage
// mints tenant scopes itself; the provider-id lookup is inherently
// cross-tenant and runs under an internal bypass scope.
type PgSubscriptionStorage struct {
	store *tenantdb.Store
}

func NewPgSubscriptionStorage(store *tenantdb.Store) *PgSubscriptionStorage {
	return &PgSubscriptionStorage{store: store}
}

func (s *PgSubscriptionStorage) CurrentByTenant(ctx context.Context, tenantID string) (*Subscription, error) {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	row, err := s.store.QueryRow(sctx, s.store.
		Select(append(append([]string{}, subscriptionColumns...), "tenant_id")...).
		From(subscriptionsTable).
		Where("status NOT IN (?, ?)", StatusCancelled, StatusExpired).
		OrderBy("created_at DESC").
		Limit(1))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanSubscription(row)
}

func (s *PgSubscriptionStorage) ByProviderID(ctx context.Context, provider, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	octx := tenant.WithContext(ctx, tenant.Context{ID: tenant.DefaultScope, Bypass: true})
	row, err := s.store.QueryRow(octx, s.store.
		Select(subscriptionColumns...).
		From(subscriptionsTable).
		Where("provider = ?", provider).
		Where("provider_subscription_id = ?", providerSubID).
		AcrossTenants(""))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanSubscription(row)
}

func (s *PgSubscriptionStorage) Insert(ctx context.Context, sub *Subscription) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: sub.TenantID})
	_, err := s.store.Insert(sctx, s.store.
		InsertInto(subscriptionsTable).
		Set("id", sub.ID).
		Set("plan_id", sub.PlanID).
		Set("status", sub.Status).
		Set("provider", sub.Provider).
		Set("provider_subscription_id", sub.ProviderSubscriptionID).
		Set("provider_customer_id", sub.ProviderCustomerID).
		Set("price_cents", sub.PriceCents).
		Set("currency", sub.Currency).
		Set("billing_interval", sub.Interval).
		Set("current_period_start", sub.CurrentPeriodStart).
		Set("current_period_end", sub.CurrentPeriodEnd).
		Set("trial_ends_at", sub.TrialEndsAt).
		Set("auto_renew", sub.AutoRenew).
		Set("payment_failure_count", sub.PaymentFailureCount).
		Set("cancelled_at", sub.CancelledAt).
		Set("created_at", sub.CreatedAt).
		Set("updated_at", sub.UpdatedAt))
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateSubscription
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgSubscriptionStorage) Update(ctx context.Context, sub *Subscription) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: sub.TenantID})
	err := s.store.Exec(sctx, s.updateBuilder(sub))
	if errors.Is(err, tenantdb.ErrNotFound) {
		return ErrSubscriptionNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgSubscriptionStorage) SavePlanChange(ctx context.Context, sub *Subscription, maxEmployees int) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: sub.TenantID})
	err := s.store.InTx(sctx, func(tx *tenantdb.Store) error {
		if err := tx.Exec(sctx, txUpdateBuilder(tx, sub)); err != nil {
			return err
		}
		return tx.Exec(sctx, tx.
			Update(tenantsTable).
			Set("max_employees", maxEmployees).
			Set("updated_at", sub.UpdatedAt).
			Where("id = ?", sub.TenantID))
	})
	if errors.Is(err, tenantdb.ErrNotFound) {
		return ErrSubscriptionNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgSubscriptionStorage) updateBuilder(sub *Subscription) *tenantdb.UpdateBuilder {
	return txUpdateBuilder(s.store, sub)
}

func txUpdateBuilder(store *tenantdb.Store, sub *Subscription) *tenantdb.UpdateBuilder {
	return store.
		Update(subscriptionsTable).
		Set("plan_id", sub.PlanID).
		Set("status", sub.Status).
		Set("provider", sub.Provider).
		Set("provider_subscription_id", sub.ProviderSubscriptionID).
		Set("provider_customer_id", sub.ProviderCustomerID).
		Set("price_cents", sub.PriceCents).
		Set("currency", sub.Currency).
		Set("billing_interval", sub.Interval).
		Set("current_period_start", sub.CurrentPeriodStart).
		Set("current_period_end", sub.CurrentPeriodEnd).
		Set("trial_ends_at", sub.TrialEndsAt).
		Set("auto_renew", sub.AutoRenew).
		Set("payment_failure_count", sub.PaymentFailureCount).
		Set("cancelled_at", sub.CancelledAt).
		Set("updated_at", sub.UpdatedAt).
		Where("id = ?", sub.ID)
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(
		&sub.ID, &sub.PlanID, &sub.Status, &sub.Provider, &sub.ProviderSubscriptionID,
		&sub.ProviderCustomerID, &sub.PriceCents, &sub.Currency, &sub.Interval,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEndsAt,
		&sub.AutoRenew, &sub.PaymentFailureCount, &sub.CancelledAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.TenantID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &sub, nil
}

// PgEventStorage persists webhook deliveries. webhook_events is unscoped
// (deliveries may arrive before tenant attribution is possible) and the
// claim needs FOR UPDATE SKIP LOCKED, so this store runs raw SQL against
// the pool instead of the builders.
type PgEventStorage struct {
	db tenantdb.DB
}

func NewPgEventStorage(db tenantdb.DB) *PgEventStorage {
	return &PgEventStorage{db: db}
}

const webhookEventColumns = `id, provider, external_event_id, event_type, payload,
	COALESCE(tenant_id, ''), subscription_id, signature_valid, processed,
	attempts, COALESCE(last_error, ''), received_at, processed_at`

func (s *PgEventStorage) Insert(ctx context.Context, rec *WebhookRecord) (*WebhookRecord, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO webhook_events (id, provider, external_event_id, event_type,
			payload, tenant_id, subscription_id, signature_valid, processed,
			attempts, received_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, false, 0, $9)
		ON CONFLICT (provider, external_event_id) DO NOTHING`,
		rec.ID, rec.Provider, rec.ExternalEventID, rec.EventType,
		rec.Payload, rec.TenantID, rec.SubscriptionID, rec.SignatureValid,
		rec.ReceivedAt)
	if err != nil {
		return nil, false, errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() > 0 {
		return rec, true, nil
	}

	existing, err := s.byExternalID(ctx, rec.Provider, rec.ExternalEventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PgEventStorage) Get(ctx context.Context, id uuid.UUID) (*WebhookRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE id = $1`, id)
	return scanWebhookRecord(row)
}

func (s *PgEventStorage) byExternalID(ctx context.Context, provider, externalID string) (*WebhookRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		 WHERE provider = $1 AND external_event_id = $2`, provider, externalID)
	return scanWebhookRecord(row)
}

func (s *PgEventStorage) Process(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, rec *WebhookRecord) error) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, errors.Join(ErrStorageFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE id = $1 AND processed = false
		FOR UPDATE SKIP LOCKED`, id)
	rec, err := scanWebhookRecord(row)
	if errors.Is(err, ErrEventNotFound) {
		// Already processed, or another worker holds the claim.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if ferr := fn(ctx, rec); ferr != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE webhook_events
			SET attempts = attempts + 1, last_error = $2
			WHERE id = $1`, id, ferr.Error()); err != nil {
			return true, errors.Join(ErrStorageFailed, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return true, errors.Join(ErrStorageFailed, err)
		}
		return true, ferr
	}

	if _, err := tx.Exec(ctx, `
		UPDATE webhook_events
		SET processed = true, processed_at = now(), last_error = NULL
		WHERE id = $1`, id); err != nil {
		return true, errors.Join(ErrStorageFailed, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return true, errors.Join(ErrStorageFailed, err)
	}
	return true, nil
}

func (s *PgEventStorage) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]WebhookRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE processed = false AND signature_valid = true AND attempts < $1
		ORDER BY received_at
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []WebhookRecord
	for rows.Next() {
		rec, err := scanWebhookRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanWebhookRecord(row pgx.Row) (*WebhookRecord, error) {
	var rec WebhookRecord
	if err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ExternalEventID, &rec.EventType, &rec.Payload,
		&rec.TenantID, &rec.SubscriptionID, &rec.SignatureValid, &rec.Processed,
		&rec.Attempts, &rec.LastError, &rec.ReceivedAt, &rec.ProcessedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}
	return &rec, nil
}
