package directory

import (
	"time"

	"github.com/google/uuid"
)

// EmployeeStatus is the employment state of a directory record.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is one directory record. EmployeeID is the tenant's own badge
// or payroll number, unique within the tenant.
type Employee struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     string         `json:"tenant_id"`
	EmployeeID   string         `json:"employee_id"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Email        string         `json:"email"`
	DepartmentID *uuid.UUID     `json:"department_id,omitempty"`
	PositionID   *uuid.UUID     `json:"position_id,omitempty"`
	Status       EmployeeStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Department groups employees.
type Department struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is a job title, optionally tied to a department.
type Position struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Title        string     `json:"title"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// EmployeeFilter narrows employee listings.
type EmployeeFilter struct {
	Status EmployeeStatus
	Limit  int
	Offset int
}
