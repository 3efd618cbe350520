package usage

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

const metricsTable = "usage_metrics"

var metricColumns = []string{
	"id", "period_start", "employee_count", "user_count",
	"api_request_count", "api_request_count_today", "last_api_request_date",
	"storage_bytes_used", "feature_usage", "last_updated",
}

// PgStorage persists usage metrics through the tenant-scoped store. The
// metering calls arrive from request middleware and workers alike, so the
// storage mints the tenant scope from the explicit tenant id.
type PgStorage struct {
	store *tenantdb.Store
	now   func() time.Time
}

// NewPgStorage creates the Postgres usage storage.
func NewPgStorage(store *tenantdb.Store) *PgStorage {
	return &PgStorage{store: store, now: time.Now}
}

func scoped(ctx context.Context, tenantID string) context.Context {
	return tenant.WithContext(ctx, tenant.Context{ID: tenantID})
}

func (s *PgStorage) EnsureRow(ctx context.Context, tenantID string, period time.Time, employees, users int) error {
	empty, _ := json.Marshal(map[string]int64{})
	_, err := s.store.Insert(scoped(ctx, tenantID), s.store.
		InsertInto(metricsTable).
		Set("id", uuid.New()).
		Set("period_start", period).
		Set("employee_count", employees).
		Set("user_count", users).
		Set("api_request_count", 0).
		Set("api_request_count_today", 0).
		Set("storage_bytes_used", 0).
		Set("feature_usage", empty).
		Set("last_updated", s.now().UTC()).
		OnConflictDoNothing("tenant_id", "period_start"))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) Get(ctx context.Context, tenantID string, period time.Time) (*Metric, error) {
	row, err := s.store.QueryRow(scoped(ctx, tenantID), s.store.
		Select(append(append([]string{}, metricColumns...), "tenant_id")...).
		From(metricsTable).
		Where("period_start = ?", period))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanMetric(row)
}

func (s *PgStorage) IncrementAPIRequests(ctx context.Context, tenantID string, period time.Time, today time.Time) error {
	day := today.UTC().Truncate(24 * time.Hour)
	return s.exec(scoped(ctx, tenantID), s.store.
		Update(metricsTable).
		SetExpr("api_request_count", "api_request_count + 1").
		SetExpr("api_request_count_today",
			"CASE WHEN last_api_request_date = ? THEN api_request_count_today + 1 ELSE 1 END", day).
		Set("last_api_request_date", day).
		Set("last_updated", s.now().UTC()).
		Where("period_start = ?", period))
}

func (s *PgStorage) SetEmployeeCount(ctx context.Context, tenantID string, period time.Time, n int) error {
	return s.exec(scoped(ctx, tenantID), s.store.
		Update(metricsTable).
		Set("employee_count", n).
		Set("last_updated", s.now().UTC()).
		Where("period_start = ?", period))
}

func (s *PgStorage) SetUserCount(ctx context.Context, tenantID string, period time.Time, n int) error {
	return s.exec(scoped(ctx, tenantID), s.store.
		Update(metricsTable).
		Set("user_count", n).
		Set("last_updated", s.now().UTC()).
		Where("period_start = ?", period))
}

func (s *PgStorage) AddStorageBytes(ctx context.Context, tenantID string, period time.Time, delta int64) error {
	return s.exec(scoped(ctx, tenantID), s.store.
		Update(metricsTable).
		SetExpr("storage_bytes_used", "GREATEST(storage_bytes_used + ?, 0)", delta).
		Set("last_updated", s.now().UTC()).
		Where("period_start = ?", period))
}

func (s *PgStorage) IncrementFeatureUsage(ctx context.Context, tenantID string, period time.Time, key string, delta int64) error {
	sctx := scoped(ctx, tenantID)
	err := s.store.InTx(sctx, func(tx *tenantdb.Store) error {
		usage, err := s.readFeatureUsage(sctx, tx, period)
		if err != nil {
			return err
		}
		usage[key] += delta
		return s.writeFeatureUsage(sctx, tx, period, usage)
	})
	if err != nil && !errors.Is(err, ErrMetricNotFound) {
		return errors.Join(ErrStorageFailed, err)
	}
	return err
}

func (s *PgStorage) MarkWarned(ctx context.Context, tenantID string, period time.Time, dim Dimension) (bool, error) {
	sctx := scoped(ctx, tenantID)
	marked := false
	err := s.store.InTx(sctx, func(tx *tenantdb.Store) error {
		usage, err := s.readFeatureUsage(sctx, tx, period)
		if err != nil {
			return err
		}
		if usage[warnedKey(dim)] > 0 {
			return nil
		}
		usage[warnedKey(dim)] = 1
		marked = true
		return s.writeFeatureUsage(sctx, tx, period, usage)
	})
	if err != nil && !errors.Is(err, ErrMetricNotFound) {
		return false, errors.Join(ErrStorageFailed, err)
	}
	return marked, err
}

func (s *PgStorage) readFeatureUsage(ctx context.Context, tx *tenantdb.Store, period time.Time) (map[string]int64, error) {
	row, err := tx.QueryRow(ctx, tx.
		Select("feature_usage").
		From(metricsTable).
		Where("period_start = ?", period))
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, err
	}
	usage := make(map[string]int64)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &usage); err != nil {
			return nil, err
		}
	}
	return usage, nil
}

func (s *PgStorage) writeFeatureUsage(ctx context.Context, tx *tenantdb.Store, period time.Time, usage map[string]int64) error {
	raw, err := json.Marshal(usage)
	if err != nil {
		return err
	}
	return tx.Exec(ctx, tx.
		Update(metricsTable).
		Set("feature_usage", raw).
		Set("last_updated", s.now().UTC()).
		Where("period_start = ?", period))
}

// Aggregate sums client-side over the period's rows: tenant count on a
// control plane is operator-scale, not data-scale.
func (s *PgStorage) Aggregate(ctx context.Context, period time.Time) (Aggregate, error) {
	rows, err := s.ListForPeriod(ctx, period)
	if err != nil {
		return Aggregate{}, err
	}
	agg := Aggregate{PeriodStart: period}
	for _, m := range rows {
		agg.TenantCount++
		agg.TotalEmployees += int64(m.EmployeeCount)
		agg.TotalUsers += int64(m.UserCount)
		agg.TotalAPIRequests += m.APIRequestCount
		agg.TotalStorage += m.StorageBytesUsed
	}
	return agg, nil
}

func (s *PgStorage) ListForPeriod(ctx context.Context, period time.Time) ([]Metric, error) {
	octx := tenant.WithContext(ctx, tenant.Context{ID: tenant.DefaultScope, Bypass: true})
	rows, err := s.store.Query(octx, s.store.
		Select(metricColumns...).
		From(metricsTable).
		Where("period_start = ?", period).
		AcrossTenants(""))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		m, err := scanMetricRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PgStorage) exec(ctx context.Context, b *tenantdb.UpdateBuilder) error {
	err := s.store.Exec(ctx, b)
	if errors.Is(err, tenantdb.ErrNotFound) {
		return ErrMetricNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func scanMetric(row pgx.Row) (*Metric, error) {
	m, err := scanMetricRow(row)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMetricNotFound
	}
	return m, err
}

func scanMetricRow(row pgx.Row) (*Metric, error) {
	var m Metric
	var raw []byte
	if err := row.Scan(
		&m.ID, &m.PeriodStart, &m.EmployeeCount, &m.UserCount,
		&m.APIRequestCount, &m.APIRequestCountToday, &m.LastAPIRequestDate,
		&m.StorageBytesUsed, &raw, &m.LastUpdated, &m.TenantID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.FeatureUsage); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
	}
	return &m, nil
}
