package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/pg"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const (
	usersTable           = "users"
	rolePermissionsTable = "role_permissions"
)

// PgUserStorage persists accounts. The users table is unscoped (login
// happens before tenant resolution, SuperAdmins have no tenant), so it
// runs raw SQL against the pool instead of the scoped builders.
type PgUserStorage struct {
	db tenantdb.DB
}

func NewPgUserStorage(db tenantdb.DB) *PgUserStorage {
	return &PgUserStorage{db: db}
}

const userColumns = `id, email, name, password_hash, role,
	COALESCE(tenant_id, ''), is_active, created_at, updated_at`

func (s *PgUserStorage) ByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *PgUserStorage) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PgUserStorage) Insert(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, tenant_id,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.Role,
		u.TenantID, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgUserStorage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgUserStorage) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgUserStorage) LinkTenant(ctx context.Context, id uuid.UUID, tenantID string, role Role) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET tenant_id = NULLIF($2, ''), role = $3, updated_at = $4 WHERE id = $1`,
		id, tenantID, role, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgUserStorage) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE tenant_id = $1 AND is_active`, tenantID).Scan(&n)
	if err != nil {
		return 0, errors.Join(ErrStorageFailed, err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role,
		&u.TenantID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &u, nil
}

// PgPermissionStorage persists role permissions through the tenant-scoped
// store. Permission checks run inside an established tenant scope, but the
// provisioning worker seeds rows before any request context exists, so the
// storage mints the scope from the explicit tenant id.
type PgPermissionStorage struct {
	store *tenantdb.Store
}

func NewPgPermissionStorage(store *tenantdb.Store) *PgPermissionStorage {
	return &PgPermissionStorage{store: store}
}

var permissionColumns = []string{
	"id", "role_name", "page_path", "page_name",
	"can_access", "can_view", "can_create", "can_edit", "can_delete",
}

func (s *PgPermissionStorage) ForRole(ctx context.Context, tenantID string, role Role, pagePath string) (*Permission, error) {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	row, err := s.store.QueryRow(sctx, s.store.
		Select(append(append([]string{}, permissionColumns...), "tenant_id")...).
		From(rolePermissionsTable).
		Where("role_name = ?", role).
		Where("page_path = ?", pagePath))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return scanPermission(row)
}

func (s *PgPermissionStorage) Seed(ctx context.Context, tenantID string, perms []Permission) error {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	for _, p := range perms {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		_, err := s.store.Insert(sctx, s.store.
			InsertInto(rolePermissionsTable).
			Set("id", p.ID).
			Set("role_name", p.Role).
			Set("page_path", p.PagePath).
			Set("page_name", p.PageName).
			Set("can_access", p.CanAccess).
			Set("can_view", p.CanView).
			Set("can_create", p.CanCreate).
			Set("can_edit", p.CanEdit).
			Set("can_delete", p.CanDelete).
			OnConflictDoNothing("tenant_id", "role_name", "page_path"))
		if err != nil {
			return errors.Join(ErrStorageFailed, err)
		}
	}
	return nil
}

func (s *PgPermissionStorage) ListForTenant(ctx context.Context, tenantID string) ([]Permission, error) {
	sctx := tenant.WithContext(ctx, tenant.Context{ID: tenantID})
	rows, err := s.store.Query(sctx, s.store.
		Select(append(append([]string{}, permissionColumns...), "tenant_id")...).
		From(rolePermissionsTable).
		OrderBy("role_name, page_path"))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPermission(row pgx.Row) (*Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Role, &p.PagePath, &p.PageName,
		&p.CanAccess, &p.CanView, &p.CanCreate, &p.CanEdit, &p.CanDelete,
		&p.TenantID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrPermissionNotFound
		}
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &p, nil
}
