package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

// MemoryStorage is the in-memory Storage used in tests. It mirrors the
// tenant-scoped semantics of the Postgres storage: the scope comes from
// the context, reads filter by it and cross-tenant mutations surface as
// tenantdb.ErrCrossTenantAccess.
type MemoryStorage struct {
	mu          sync.RWMutex
	employees   map[uuid.UUID]*Employee
	departments map[uuid.UUID]*Department
	positions   map[uuid.UUID]*Position
}

// NewMemoryStorage creates an empty in-memory directory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		employees:   make(map[uuid.UUID]*Employee),
		departments: make(map[uuid.UUID]*Department),
		positions:   make(map[uuid.UUID]*Position),
	}
}

func scopeID(ctx context.Context) (string, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return "", tenantdb.ErrTenantContextRequired
	}
	return tc.ID, nil
}

func (s *MemoryStorage) InsertEmployee(ctx context.Context, e *Employee) error {
	tid, err := scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.employees {
		if existing.TenantID == tid && existing.EmployeeID == e.EmployeeID {
			return ErrDuplicateEmployeeID
		}
	}
	cp := *e
	cp.TenantID = tid
	s.employees[e.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok || e.TenantID != tid {
		return nil, ErrEmployeeNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStorage) ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Employee
	for _, e := range s.employees {
		if e.TenantID != tid {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) UpdateEmployee(ctx context.Context, e *Employee) error {
	tid, err := scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.employees[e.ID]
	if !ok {
		return ErrEmployeeNotFound
	}
	if existing.TenantID != tid {
		return tenantdb.ErrCrossTenantAccess
	}
	cp := *e
	cp.TenantID = tid
	s.employees[e.ID] = &cp
	return nil
}

func (s *MemoryStorage) CountEmployees(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.employees {
		if e.TenantID == tenantID && e.Status == EmployeeActive {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) InsertDepartment(ctx context.Context, d *Department) error {
	tid, err := scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.TenantID = tid
	s.departments[d.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok || d.TenantID != tid {
		return nil, ErrDepartmentNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStorage) ListDepartments(ctx context.Context) ([]Department, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Department
	for _, d := range s.departments {
		if d.TenantID == tid {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStorage) UpdateDepartment(ctx context.Context, d *Department) error {
	tid, err := scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.departments[d.ID]
	if !ok {
		return ErrDepartmentNotFound
	}
	if existing.TenantID != tid {
		return tenantdb.ErrCrossTenantAccess
	}
	cp := *d
	cp.TenantID = tid
	s.departments[d.ID] = &cp
	return nil
}

func (s *MemoryStorage) InsertPosition(ctx context.Context, p *Position) error {
	tid, err := scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.TenantID = tid
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetPosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok || p.TenantID != tid {
		return nil, ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStorage) ListPositions(ctx context.Context) ([]Position, error) {
	tid, err := scopeID(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Position
	for _, p := range s.positions {
		if p.TenantID == tid {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}
