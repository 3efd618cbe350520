package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/pkg/jwt"
)

// Role is a user's role within a tenant. SuperAdmin is platform-level and
// is the only role without a tenant.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleHR         Role = "hr"
	RoleEmployee   Role = "employee"
)

// TenantRoles are the roles assignable within a tenant, in seniority order.
var TenantRoles = []Role{RoleAdmin, RoleHR, RoleEmployee}

// User is an account row. TenantID is empty exactly when the user is a
// SuperAdmin. PasswordHash never leaves the module.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	TenantID     string    `json:"tenant_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccessClaims is the JWT payload for an authenticated session. The
// impersonation fields are never minted into login tokens; they are set
// only when the operator surface resolves an impersonation token.
type AccessClaims struct {
	jwt.StandardClaims
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	Impersonated bool   `json:"-"`
	OperatorID   string `json:"-"`
}

// Action is one of the permission columns checked by Can.
type Action string

const (
	ActionAccess Action = "access"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Permission is one role_permissions row: what a role may do on a page.
type Permission struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Role      Role      `json:"role"`
	PagePath  string    `json:"page_path"`
	PageName  string    `json:"page_name"`
	CanAccess bool      `json:"can_access"`
	CanView   bool      `json:"can_view"`
	CanCreate bool      `json:"can_create"`
	CanEdit   bool      `json:"can_edit"`
	CanDelete bool      `json:"can_delete"`
}

// Allows reports whether the permission row grants the action.
func (p Permission) Allows(action Action) (bool, error) {
	switch action {
	case ActionAccess:
		return p.CanAccess, nil
	case ActionView:
		return p.CanView, nil
	case ActionCreate:
		return p.CanCreate, nil
	case ActionEdit:
		return p.CanEdit, nil
	case ActionDelete:
		return p.CanDelete, nil
	default:
		return false, ErrUnknownAction
	}
}
