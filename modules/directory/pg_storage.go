package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/pg"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const (
	employeesTable   = "employees"
	departmentsTable = "departments"
	positionsTable   = "positions"
)

// PgStorage persists directory records through the tenant-scoped store.
// Handlers pass their request context straight through: the resolver
// middleware already established the scope, and the store stamps and
// filters tenant_id on every statement.
type PgStorage struct {
	store *tenantdb.Store
}

// NewPgStorage creates the Postgres directory storage.
func NewPgStorage(store *tenantdb.Store) *PgStorage {
	return &PgStorage{store: store}
}

var employeeColumns = []string{
	"id", "employee_id", "first_name", "last_name", "email",
	"department_id", "position_id", "status", "created_at", "updated_at",
}

func (s *PgStorage) InsertEmployee(ctx context.Context, e *Employee) error {
	_, err := s.store.Insert(ctx, s.store.
		InsertInto(employeesTable).
		Set("id", e.ID).
		Set("employee_id", e.EmployeeID).
		Set("first_name", e.FirstName).
		Set("last_name", e.LastName).
		Set("email", e.Email).
		Set("department_id", e.DepartmentID).
		Set("position_id", e.PositionID).
		Set("status", e.Status).
		Set("created_at", e.CreatedAt).
		Set("updated_at", e.UpdatedAt))
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEmployeeID
		}
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	row, err := s.store.QueryRow(ctx, s.store.
		Select(append(append([]string{}, employeeColumns...), "tenant_id")...).
		From(employeesTable).
		Where("id = ?", id))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanEmployee(row)
}

func (s *PgStorage) ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error) {
	b := s.store.
		Select(append(append([]string{}, employeeColumns...), "tenant_id")...).
		From(employeesTable).
		OrderBy("last_name, first_name")
	if f.Status != "" {
		b = b.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	if f.Offset > 0 {
		b = b.Offset(f.Offset)
	}

	rows, err := s.store.Query(ctx, b)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PgStorage) UpdateEmployee(ctx context.Context, e *Employee) error {
	err := s.store.Exec(ctx, s.store.
		Update(employeesTable).
		Set("employee_id", e.EmployeeID).
		Set("first_name", e.FirstName).
		Set("last_name", e.LastName).
		Set("email", e.Email).
		Set("department_id", e.DepartmentID).
		Set("position_id", e.PositionID).
		Set("status", e.Status).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", e.ID))
	if err != nil {
		if errors.Is(err, tenantdb.ErrNotFound) {
			return ErrEmployeeNotFound
		}
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEmployeeID
		}
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) CountEmployees(ctx context.Context, tenantID string) (int, error) {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	row, err := s.store.QueryRow(sctx, s.store.
		Select("count(*)").
		From(employeesTable).
		Where("status = ?", EmployeeActive))
	if err != nil {
		return 0, errors.Join(ErrStorageFailed, err)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, errors.Join(ErrStorageFailed, err)
	}
	return n, nil
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.EmployeeID, &e.FirstName, &e.LastName, &e.Email,
		&e.DepartmentID, &e.PositionID, &e.Status, &e.CreatedAt, &e.UpdatedAt,
		&e.TenantID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrEmployeeNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &e, nil
}

func (s *PgStorage) InsertDepartment(ctx context.Context, d *Department) error {
	_, err := s.store.Insert(ctx, s.store.
		InsertInto(departmentsTable).
		Set("id", d.ID).
		Set("name", d.Name).
		Set("created_at", d.CreatedAt).
		Set("updated_at", d.UpdatedAt))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	row, err := s.store.QueryRow(ctx, s.store.
		Select("id", "name", "created_at", "updated_at", "tenant_id").
		From(departmentsTable).
		Where("id = ?", id))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanDepartment(row)
}

func (s *PgStorage) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.store.Query(ctx, s.store.
		Select("id", "name", "created_at", "updated_at", "tenant_id").
		From(departmentsTable).
		OrderBy("name"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PgStorage) UpdateDepartment(ctx context.Context, d *Department) error {
	err := s.store.Exec(ctx, s.store.
		Update(departmentsTable).
		Set("name", d.Name).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", d.ID))
	if err != nil {
		if errors.Is(err, tenantdb.ErrNotFound) {
			return ErrDepartmentNotFound
		}
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt, &d.TenantID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrDepartmentNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &d, nil
}

func (s *PgStorage) InsertPosition(ctx context.Context, p *Position) error {
	_, err := s.store.Insert(ctx, s.store.
		InsertInto(positionsTable).
		Set("id", p.ID).
		Set("title", p.Title).
		Set("department_id", p.DepartmentID).
		Set("created_at", p.CreatedAt))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgStorage) GetPosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	row, err := s.store.QueryRow(ctx, s.store.
		Select("id", "title", "department_id", "created_at", "tenant_id").
		From(positionsTable).
		Where("id = ?", id))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanPosition(row)
}

func (s *PgStorage) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := s.store.Query(ctx, s.store.
		Select("id", "title", "department_id", "created_at", "tenant_id").
		From(positionsTable).
		OrderBy("title"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (*Position, error) {
	var p Position
	err := row.Scan(&p.ID, &p.Title, &p.DepartmentID, &p.CreatedAt, &p.TenantID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrPositionNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &p, nil
}
