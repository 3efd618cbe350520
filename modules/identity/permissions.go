package identity

import (
	"context"
	"errors"

	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// Permissions answers role/page/action checks against the tenant's seeded
// permission rows.
type Permissions struct {
	storage PermissionStorage
}

// NewPermissions creates the permission service.
func NewPermissions(storage PermissionStorage) *Permissions {
	return &Permissions{storage: storage}
}

// Can reports whether the role may perform the action on the page within
// the tenant scope on ctx. SuperAdmin always may; a role without a row
// for the page may not.
func (p *Permissions) Can(ctx context.Context, role Role, pagePath string, action Action) (bool, error) {
	if role == RoleSuperAdmin {
		return true, nil
	}
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return false, nil
	}

	perm, err := p.storage.ForRole(ctx, tc.ID, role, pagePath)
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			return false, nil
		}
		return false, err
	}
	return perm.Allows(action)
}

// SeedDefaults writes the default permission catalog for the tenant.
// Idempotent: rows the tenant already has are left untouched, so a
// provisioning retry never clobbers operator adjustments.
func (p *Permissions) SeedDefaults(ctx context.Context, tenantID string) error {
	return p.storage.Seed(ctx, tenantID, DefaultPermissions())
}

// ListForTenant returns the tenant's permission matrix.
func (p *Permissions) ListForTenant(ctx context.Context, tenantID string) ([]Permission, error) {
	return p.storage.ListForTenant(ctx, tenantID)
}

type pageDef struct {
	path string
	name string
}

var defaultPages = []pageDef{
	{"/dashboard", "Dashboard"},
	{"/employees", "Employees"},
	{"/departments", "Departments"},
	{"/positions", "Positions"},
	{"/reports", "Reports"},
	{"/settings", "Settings"},
}

// DefaultPermissions is the permission catalog seeded for every new
// tenant. Admin gets everything; HR manages the directory but not
// settings; Employee is read-only on the directory surface.
func DefaultPermissions() []Permission {
	var out []Permission
	for _, page := range defaultPages {
		hrAccess, hrView, hrCreate, hrEdit, hrDel := hrGrants(page.path)
		empAccess, empView, empCreate, empEdit, empDel := employeeGrants(page.path)
		out = append(out,
			grant(RoleAdmin, page, true, true, true, true, true),
			grant(RoleHR, page, hrAccess, hrView, hrCreate, hrEdit, hrDel),
			grant(RoleEmployee, page, empAccess, empView, empCreate, empEdit, empDel),
		)
	}
	return out
}

func hrGrants(path string) (access, view, create, edit, del bool) {
	switch path {
	case "/employees", "/departments", "/positions":
		return true, true, true, true, true
	case "/dashboard", "/reports":
		return true, true, false, false, false
	default:
		return false, false, false, false, false
	}
}

func employeeGrants(path string) (access, view, create, edit, del bool) {
	switch path {
	case "/dashboard", "/employees":
		return true, true, false, false, false
	default:
		return false, false, false, false, false
	}
}

func grant(role Role, page pageDef, access, view, create, edit, del bool) Permission {
	return Permission{
		Role:      role,
		PagePath:  page.path,
		PageName:  page.name,
		CanAccess: access,
		CanView:   view,
		CanCreate: create,
		CanEdit:   edit,
		CanDelete: del,
	}
}
