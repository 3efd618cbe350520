package usage

import (
	"context"
	"log/slog"
	"time"
)

// LimitSource resolves the caps a tenant's current plan imposes. The
// billing catalog backs it in production.
type LimitSource interface {
	LimitsFor(ctx context.Context, tenantID string) (Limits, error)
}

// Counters supplies live entity counts for seeding a fresh period row.
type Counters interface {
	CountEmployees(ctx context.Context, tenantID string) (int, error)
	CountUsers(ctx context.Context, tenantID string) (int, error)
}

// Service is the metering engine facade.
type Service struct {
	storage  Storage
	limits   LimitSource
	counters Counters
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithCounters wires live entity counting for period row seeding.
func WithCounters(c Counters) Option {
	return func(s *Service) { s.counters = c }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the metering service.
func NewService(storage Storage, limits LimitSource, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		limits:  limits,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensure creates the tenant's current period row if missing and returns
// the period key.
func (s *Service) ensure(ctx context.Context, tenantID string) (time.Time, error) {
	period := PeriodStart(s.now())

	var employees, users int
	if s.counters != nil {
		var err error
		if employees, err = s.counters.CountEmployees(ctx, tenantID); err != nil {
			return period, err
		}
		if users, err = s.counters.CountUsers(ctx, tenantID); err != nil {
			return period, err
		}
	}
	if err := s.storage.EnsureRow(ctx, tenantID, period, employees, users); err != nil {
		return period, err
	}
	return period, nil
}

// Current returns the tenant's row for the running period, creating it
// on first touch.
func (s *Service) Current(ctx context.Context, tenantID string) (*Metric, error) {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.storage.Get(ctx, tenantID, period)
}

// IncrementAPIRequests counts one API request against the monthly and
// daily counters.
func (s *Service) IncrementAPIRequests(ctx context.Context, tenantID string) error {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.storage.IncrementAPIRequests(ctx, tenantID, period, s.now())
}

// UpdateEmployeeCount overwrites the employee gauge after a directory
// mutation commits.
func (s *Service) UpdateEmployeeCount(ctx context.Context, tenantID string, n int) error {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.storage.SetEmployeeCount(ctx, tenantID, period, n)
}

// UpdateUserCount overwrites the user gauge.
func (s *Service) UpdateUserCount(ctx context.Context, tenantID string, n int) error {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.storage.SetUserCount(ctx, tenantID, period, n)
}

// AddStorageBytes applies a storage delta; negative deltas floor at zero.
func (s *Service) AddStorageBytes(ctx context.Context, tenantID string, delta int64) error {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.storage.AddStorageBytes(ctx, tenantID, period, delta)
}

// IncrementFeatureUsage counts one use of a plan feature.
func (s *Service) IncrementFeatureUsage(ctx context.Context, tenantID, key string, delta int64) error {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.storage.IncrementFeatureUsage(ctx, tenantID, period, key, delta)
}

// CheckLimit evaluates one dimension against the tenant's plan caps. A
// missing cap means unbounded; Allowed reports whether one more unit fits
// under the cap.
func (s *Service) CheckLimit(ctx context.Context, tenantID string, dim Dimension) (CheckResult, error) {
	limits, err := s.limits.LimitsFor(ctx, tenantID)
	if err != nil {
		return CheckResult{}, err
	}
	m, err := s.Current(ctx, tenantID)
	if err != nil {
		return CheckResult{}, err
	}

	res := CheckResult{Dimension: dim}
	switch dim {
	case DimensionEmployees:
		res.Current = int64(m.EmployeeCount)
		if limits.MaxEmployees <= 0 {
			res.Unlimited = true
		} else {
			res.Limit = int64(limits.MaxEmployees)
		}
	case DimensionUsers:
		res.Current = int64(m.UserCount)
		if limits.MaxUsers == nil {
			res.Unlimited = true
		} else {
			res.Limit = int64(*limits.MaxUsers)
		}
	case DimensionStorage:
		res.Current = m.StorageBytesUsed
		if limits.MaxStorageBytes == nil {
			res.Unlimited = true
		} else {
			res.Limit = *limits.MaxStorageBytes
		}
	case DimensionAPIDaily:
		res.Current = s.todayCount(m)
		if limits.APIPerDay == nil {
			res.Unlimited = true
		} else {
			res.Limit = int64(*limits.APIPerDay)
		}
	default:
		return CheckResult{}, ErrUnknownDimension
	}

	res.Allowed = res.Unlimited || res.Current < res.Limit
	return res, nil
}

// todayCount reads the daily counter honoring its lazy reset: a row whose
// last request date is not today counts as zero.
func (s *Service) todayCount(m *Metric) int64 {
	today := s.now().UTC().Truncate(24 * time.Hour)
	if m.LastAPIRequestDate == nil || !m.LastAPIRequestDate.Equal(today) {
		return 0
	}
	return m.APIRequestCountToday
}

// WarnOnce records a delivered 90% warning; false means this period
// already warned for the resource.
func (s *Service) WarnOnce(ctx context.Context, tenantID string, dim Dimension) (bool, error) {
	period, err := s.ensure(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return s.storage.MarkWarned(ctx, tenantID, period, dim)
}

// Trends returns the current period aggregate next to the previous one.
func (s *Service) Trends(ctx context.Context) (Trend, error) {
	current := PeriodStart(s.now())
	previous := current.AddDate(0, -1, 0)

	cur, err := s.storage.Aggregate(ctx, current)
	if err != nil {
		return Trend{}, err
	}
	prev, err := s.storage.Aggregate(ctx, previous)
	if err != nil {
		return Trend{}, err
	}
	return Trend{Current: cur, Previous: prev}, nil
}

// CurrentPeriodMetrics returns every tenant's row for the running period,
// for the operator dashboard.
func (s *Service) CurrentPeriodMetrics(ctx context.Context) ([]Metric, error) {
	return s.storage.ListForPeriod(ctx, PeriodStart(s.now()))
}
