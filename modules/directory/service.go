package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/usage"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// Meter is the slice of the usage service the directory drives: the
// employee limit check before a create and the count refresh after every
// write.
type Meter interface {
	CheckLimit(ctx context.Context, tenantID string, dim usage.Dimension) (usage.CheckResult, error)
	UpdateEmployeeCount(ctx context.Context, tenantID string, n int) error
}

// Service implements the directory operations.
type Service struct {
	storage Storage
	meter   Meter
	tenants tenant.Provider
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithMeter wires the usage limit check and counter refresh.
func WithMeter(m Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithTenantInfo enables the subscription write guard.
func WithTenantInfo(p tenant.Provider) Option {
	return func(s *Service) { s.tenants = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the directory service.
func NewService(storage Storage, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) scope(ctx context.Context) (string, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return "", ErrNoTenantScope
	}
	return tc.ID, nil
}

// guardWrite refuses non-idempotent writes while the tenant's subscription
// is inactive. Reads are never guarded: a suspended workspace stays
// readable through its grace period.
func (s *Service) guardWrite(ctx context.Context, tenantID string) error {
	if s.tenants == nil {
		return nil
	}
	info, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if !info.SubscriptionActive {
		return ErrWritesSuspended
	}
	return nil
}

// refreshEmployeeCount pushes the live active-employee count into the
// usage period row. Failures are logged, not surfaced: the directory write
// already committed.
func (s *Service) refreshEmployeeCount(ctx context.Context, tenantID string) {
	if s.meter == nil {
		return
	}
	n, err := s.storage.CountEmployees(ctx, tenantID)
	if err == nil {
		err = s.meter.UpdateEmployeeCount(ctx, tenantID, n)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "employee count refresh failed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}

// CreateEmployeeParams are the fields for a new employee record.
type CreateEmployeeParams struct {
	EmployeeID   string
	FirstName    string
	LastName     string
	Email        string
	DepartmentID *uuid.UUID
	PositionID   *uuid.UUID
}

// CreateEmployee adds a directory record. The plan's employee limit is
// checked first; at the limit the create is refused.
func (s *Service) CreateEmployee(ctx context.Context, p CreateEmployeeParams) (*Employee, error) {
	tenantID, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guardWrite(ctx, tenantID); err != nil {
		return nil, err
	}
	if s.meter != nil {
		res, err := s.meter.CheckLimit(ctx, tenantID, usage.DimensionEmployees)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, ErrEmployeeLimitReached
		}
	}

	now := s.now().UTC()
	e := &Employee{
		ID:           uuid.New(),
		TenantID:     tenantID,
		EmployeeID:   p.EmployeeID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		DepartmentID: p.DepartmentID,
		PositionID:   p.PositionID,
		Status:       EmployeeActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.InsertEmployee(ctx, e); err != nil {
		return nil, err
	}
	s.refreshEmployeeCount(ctx, tenantID)
	return e, nil
}

// UpdateEmployeeParams carries the mutable employee fields. Nil pointers
// leave the stored value untouched; Status "" keeps the current status.
type UpdateEmployeeParams struct {
	EmployeeID   *string
	FirstName    *string
	LastName     *string
	Email        *string
	DepartmentID *uuid.UUID
	PositionID   *uuid.UUID
	Status       EmployeeStatus
}

// UpdateEmployee applies the changes to an existing record.
func (s *Service) UpdateEmployee(ctx context.Context, id uuid.UUID, p UpdateEmployeeParams) (*Employee, error) {
	tenantID, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guardWrite(ctx, tenantID); err != nil {
		return nil, err
	}

	e, err := s.storage.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.EmployeeID != nil {
		e.EmployeeID = *p.EmployeeID
	}
	if p.FirstName != nil {
		e.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		e.LastName = *p.LastName
	}
	if p.Email != nil {
		e.Email = *p.Email
	}
	if p.DepartmentID != nil {
		e.DepartmentID = p.DepartmentID
	}
	if p.PositionID != nil {
		e.PositionID = p.PositionID
	}
	if p.Status != "" {
		e.Status = p.Status
	}
	e.UpdatedAt = s.now().UTC()

	if err := s.storage.UpdateEmployee(ctx, e); err != nil {
		return nil, err
	}
	s.refreshEmployeeCount(ctx, tenantID)
	return e, nil
}

// GetEmployee returns one record within the tenant scope.
func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return s.storage.GetEmployee(ctx, id)
}

// ListEmployees returns the tenant's records, optionally filtered.
func (s *Service) ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error) {
	return s.storage.ListEmployees(ctx, f)
}

// CountEmployees reports the tenant's active employee count. The usage
// counters call it with an explicit tenant id from background workers.
func (s *Service) CountEmployees(ctx context.Context, tenantID string) (int, error) {
	return s.storage.CountEmployees(ctx, tenantID)
}

// CreateDepartment adds a department.
func (s *Service) CreateDepartment(ctx context.Context, name string) (*Department, error) {
	tenantID, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guardWrite(ctx, tenantID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &Department{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.storage.InsertDepartment(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDepartment renames a department.
func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, name string) (*Department, error) {
	tenantID, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guardWrite(ctx, tenantID); err != nil {
		return nil, err
	}

	d, err := s.storage.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name = name
	d.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateDepartment(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDepartment returns one department.
func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.storage.GetDepartment(ctx, id)
}

// ListDepartments returns the tenant's departments.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.storage.ListDepartments(ctx)
}

// CreatePosition adds a position, optionally attached to a department.
func (s *Service) CreatePosition(ctx context.Context, title string, departmentID *uuid.UUID) (*Position, error) {
	tenantID, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guardWrite(ctx, tenantID); err != nil {
		return nil, err
	}
	if departmentID != nil {
		if _, err := s.storage.GetDepartment(ctx, *departmentID); err != nil {
			return nil, err
		}
	}

	p := &Position{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Title:        title,
		DepartmentID: departmentID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.storage.InsertPosition(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPosition returns one position.
func (s *Service) GetPosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	return s.storage.GetPosition(ctx, id)
}

// ListPositions returns the tenant's positions.
func (s *Service) ListPositions(ctx context.Context) ([]Position, error) {
	return s.storage.ListPositions(ctx)
}

// SeedDefaults creates the starter departments and positions during tenant
// provisioning. Idempotent by name: existing entries are kept.
func (s *Service) SeedDefaults(ctx context.Context, tenantID string) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	now := s.now().UTC()

	existing, err := s.storage.ListDepartments(sctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[d.Name] = true
	}
	for _, name := range defaultDepartments {
		if have[name] {
			continue
		}
		d := &Department{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: now, UpdatedAt: now}
		if err := s.storage.InsertDepartment(sctx, d); err != nil {
			return err
		}
	}

	positions, err := s.storage.ListPositions(sctx)
	if err != nil {
		return err
	}
	havePos := make(map[string]bool, len(positions))
	for _, p := range positions {
		havePos[p.Title] = true
	}
	for _, title := range defaultPositions {
		if havePos[title] {
			continue
		}
		p := &Position{ID: uuid.New(), TenantID: tenantID, Title: title, CreatedAt: now}
		if err := s.storage.InsertPosition(sctx, p); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultDepartments = []string{"General", "Human Resources"}
	defaultPositions   = []string{"Employee", "Manager"}
)
