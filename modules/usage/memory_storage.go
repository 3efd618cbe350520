package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type metricKey struct {
	tenantID string
	period   time.Time
}

// MemoryStorage is an in-memory Storage for tests and local development.
type MemoryStorage struct {
	mu   sync.Mutex
	rows map[metricKey]*Metric
	now  func() time.Time
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rows: make(map[metricKey]*Metric),
		now:  time.Now,
	}
}

func (s *MemoryStorage) EnsureRow(_ context.Context, tenantID string, period time.Time, employees, users int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metricKey{tenantID, period}
	if _, ok := s.rows[key]; ok {
		return nil
	}
	s.rows[key] = &Metric{
		ID:            uuid.New(),
		TenantID:      tenantID,
		PeriodStart:   period,
		EmployeeCount: employees,
		UserCount:     users,
		FeatureUsage:  make(map[string]int64),
		LastUpdated:   s.now().UTC(),
	}
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, tenantID string, period time.Time) (*Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[metricKey{tenantID, period}]
	if !ok {
		return nil, ErrMetricNotFound
	}
	return copyMetric(m), nil
}

func (s *MemoryStorage) mutate(tenantID string, period time.Time, fn func(*Metric)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[metricKey{tenantID, period}]
	if !ok {
		return ErrMetricNotFound
	}
	fn(m)
	m.LastUpdated = s.now().UTC()
	return nil
}

func (s *MemoryStorage) IncrementAPIRequests(_ context.Context, tenantID string, period time.Time, today time.Time) error {
	day := today.UTC().Truncate(24 * time.Hour)
	return s.mutate(tenantID, period, func(m *Metric) {
		m.APIRequestCount++
		if m.LastAPIRequestDate != nil && m.LastAPIRequestDate.Equal(day) {
			m.APIRequestCountToday++
		} else {
			m.APIRequestCountToday = 1
		}
		m.LastAPIRequestDate = &day
	})
}

func (s *MemoryStorage) SetEmployeeCount(_ context.Context, tenantID string, period time.Time, n int) error {
	return s.mutate(tenantID, period, func(m *Metric) { m.EmployeeCount = n })
}

func (s *MemoryStorage) SetUserCount(_ context.Context, tenantID string, period time.Time, n int) error {
	return s.mutate(tenantID, period, func(m *Metric) { m.UserCount = n })
}

func (s *MemoryStorage) AddStorageBytes(_ context.Context, tenantID string, period time.Time, delta int64) error {
	return s.mutate(tenantID, period, func(m *Metric) {
		m.StorageBytesUsed += delta
		if m.StorageBytesUsed < 0 {
			m.StorageBytesUsed = 0
		}
	})
}

func (s *MemoryStorage) IncrementFeatureUsage(_ context.Context, tenantID string, period time.Time, key string, delta int64) error {
	return s.mutate(tenantID, period, func(m *Metric) {
		if m.FeatureUsage == nil {
			m.FeatureUsage = make(map[string]int64)
		}
		m.FeatureUsage[key] += delta
	})
}

func (s *MemoryStorage) MarkWarned(_ context.Context, tenantID string, period time.Time, dim Dimension) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[metricKey{tenantID, period}]
	if !ok {
		return false, ErrMetricNotFound
	}
	if m.FeatureUsage == nil {
		m.FeatureUsage = make(map[string]int64)
	}
	if m.FeatureUsage[warnedKey(dim)] > 0 {
		return false, nil
	}
	m.FeatureUsage[warnedKey(dim)] = 1
	return true, nil
}

func (s *MemoryStorage) Aggregate(_ context.Context, period time.Time) (Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := Aggregate{PeriodStart: period}
	for key, m := range s.rows {
		if !key.period.Equal(period) {
			continue
		}
		agg.TenantCount++
		agg.TotalEmployees += int64(m.EmployeeCount)
		agg.TotalUsers += int64(m.UserCount)
		agg.TotalAPIRequests += m.APIRequestCount
		agg.TotalStorage += m.StorageBytesUsed
	}
	return agg, nil
}

func (s *MemoryStorage) ListForPeriod(_ context.Context, period time.Time) ([]Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Metric
	for key, m := range s.rows {
		if key.period.Equal(period) {
			out = append(out, *copyMetric(m))
		}
	}
	return out, nil
}

func copyMetric(m *Metric) *Metric {
	c := *m
	if m.LastAPIRequestDate != nil {
		d := *m.LastAPIRequestDate
		c.LastAPIRequestDate = &d
	}
	if m.FeatureUsage != nil {
		c.FeatureUsage = make(map[string]int64, len(m.FeatureUsage))
		for k, v := range m.FeatureUsage {
			c.FeatureUsage[k] = v
		}
	}
	return &c
}
