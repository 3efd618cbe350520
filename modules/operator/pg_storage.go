package operator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
)

const (
	adminAuditsTable = "admin_audits"
	grantsTable      = "impersonation_grants"
)

// PgAuditStorage writes the audit trail. Both operator tables are
// control-plane tables outside the tenant scope.
type PgAuditStorage struct {
	store *tenantdb.Store
}

func NewPgAuditStorage(store *tenantdb.Store) *PgAuditStorage {
	return &PgAuditStorage{store: store}
}

func (s *PgAuditStorage) Insert(ctx context.Context, a *AdminAudit) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.store.Insert(ctx, s.store.
		InsertInto(adminAuditsTable).
		Set("id", a.ID).
		Set("actor_id", a.ActorID).
		Set("actor_email", emptyToNil(a.ActorEmail)).
		Set("method", a.Method).
		Set("endpoint", a.Endpoint).
		Set("status", a.Status).
		Set("success", a.Success).
		Set("tenant_id", emptyToNil(a.TenantID)).
		Set("request_body", emptyToNil(a.RequestBody)).
		Set("impersonated", a.Impersonated).
		Set("ip", emptyToNil(a.IP)).
		Set("user_agent", emptyToNil(a.UserAgent)).
		Set("duration_ms", a.DurationMs).
		Set("created_at", a.CreatedAt))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

var auditColumns = []string{
	"id", "actor_id", "COALESCE(actor_email, '')", "method", "endpoint",
	"status", "success", "COALESCE(tenant_id, '')", "COALESCE(request_body, '')",
	"impersonated", "COALESCE(ip, '')", "COALESCE(user_agent, '')",
	"duration_ms", "created_at",
}

func (s *PgAuditStorage) List(ctx context.Context, f AuditFilter) ([]AdminAudit, error) {
	b := s.store.
		Select(auditColumns...).
		From(adminAuditsTable).
		OrderBy("created_at DESC")
	if f.ActorID != "" {
		b = b.Where("actor_id = ?", f.ActorID)
	}
	if f.TenantID != "" {
		b = b.Where("tenant_id = ?", f.TenantID)
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

	var out []AdminAudit
	for rows.Next() {
		var a AdminAudit
		if err := rows.Scan(&a.ID, &a.ActorID, &a.ActorEmail, &a.Method, &a.Endpoint,
			&a.Status, &a.Success, &a.TenantID, &a.RequestBody,
			&a.Impersonated, &a.IP, &a.UserAgent, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PgGrantStorage persists impersonation grants.
type PgGrantStorage struct {
	store *tenantdb.Store
}

func NewPgGrantStorage(store *tenantdb.Store) *PgGrantStorage {
	return &PgGrantStorage{store: store}
}

func (s *PgGrantStorage) Insert(ctx context.Context, g *ImpersonationGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := s.store.Insert(ctx, s.store.
		InsertInto(grantsTable).
		Set("id", g.ID).
		Set("operator_id", g.OperatorID).
		Set("operator_email", emptyToNil(g.OperatorEmail)).
		Set("tenant_id", g.TenantID).
		Set("expires_at", g.ExpiresAt).
		Set("created_at", g.CreatedAt))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PgGrantStorage) ByID(ctx context.Context, id uuid.UUID) (*ImpersonationGrant, error) {
	row, err := s.store.QueryRow(ctx, s.store.
		Select("id", "operator_id", "COALESCE(operator_email, '')", "tenant_id",
			"expires_at", "revoked_at", "created_at").
		From(grantsTable).
		Where("id = ?", id))
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}

	var g ImpersonationGrant
	err = row.Scan(&g.ID, &g.OperatorID, &g.OperatorEmail, &g.TenantID,
		&g.ExpiresAt, &g.RevokedAt, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &g, nil
}

func (s *PgGrantStorage) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	affected, err := s.store.ExecAffected(ctx, s.store.
		Update(grantsTable).
		Set("revoked_at", at).
		Where("id = ?", id).
		Where("revoked_at IS NULL"))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if affected == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		if _, err := s.ByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
