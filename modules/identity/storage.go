package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserStorage persists accounts. The users table is unscoped: lookups by
// email happen before any tenant is resolved.
type UserStorage interface {
	// ByEmail returns the user with the given (already normalized) email,
	// or ErrUserNotFound.
	ByEmail(ctx context.Context, email string) (*User, error)
	// ByID returns the user by id, or ErrUserNotFound.
	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	// Insert stores a new user. A taken email maps to ErrDuplicateEmail.
	Insert(ctx context.Context, u *User) error
	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// SetActive toggles the account.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// LinkTenant moves the account to the given tenant and role.
	LinkTenant(ctx context.Context, id uuid.UUID, tenantID string, role Role) error
	// CountByTenant returns how many active accounts the tenant has.
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// PermissionStorage persists tenant-scoped role permissions.
type PermissionStorage interface {
	// ForRole returns the permission row for (role, pagePath) within the
	// tenant, or ErrPermissionNotFound.
	ForRole(ctx context.Context, tenantID string, role Role, pagePath string) (*Permission, error)
	// Seed inserts the given rows, skipping any (role, pagePath) pair the
	// tenant already has. Safe to call on provisioning retry.
	Seed(ctx context.Context, tenantID string, perms []Permission) error
	// ListForTenant returns every permission row of the tenant.
	ListForTenant(ctx context.Context, tenantID string) ([]Permission, error)
}
