package operator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditStorage persists the operator audit trail. Audits are append-only.
type AuditStorage interface {
	Insert(ctx context.Context, a *AdminAudit) error
	List(ctx context.Context, f AuditFilter) ([]AdminAudit, error)
}

// GrantStorage persists impersonation grants.
type GrantStorage interface {
	Insert(ctx context.Context, g *ImpersonationGrant) error
	ByID(ctx context.Context, id uuid.UUID) (*ImpersonationGrant, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}
