package directory

import (
	"context"

	"github.com/google/uuid"
)

// Storage persists directory records. All methods except CountEmployees
// run under the tenant scope already on ctx (request contexts carry it
// from the resolver middleware); CountEmployees takes an explicit tenant
// because the usage counters call it from background workers.
type Storage interface {
	InsertEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error)
	ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error)
	UpdateEmployee(ctx context.Context, e *Employee) error
	CountEmployees(ctx context.Context, tenantID string) (int, error)

	InsertDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	UpdateDepartment(ctx context.Context, d *Department) error

	InsertPosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (*Position, error)
	ListPositions(ctx context.Context) ([]Position, error)
}
