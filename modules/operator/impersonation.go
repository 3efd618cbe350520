package operator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/pkg/jwt"
	"github.com/dmitrymomot/crewplane/pkg/token"
)

// impersonationPayload is the HMAC token body. The grant id is the
// revocation handle; everything else is carried for claim construction
// without a second lookup.
type impersonationPayload struct {
	GrantID    uuid.UUID `json:"gid"`
	OperatorID string    `json:"op"`
	TenantID   string    `json:"tid"`
	ExpiresAt  int64     `json:"exp"`
}

// Impersonator issues and resolves impersonation tokens. It implements
// the identity middleware's ImpersonationParser, so an impersonation
// token rides the same Authorization header as a regular JWT.
type Impersonator struct {
	grants GrantStorage
	secret string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type ImpersonatorOption func(*Impersonator)

func WithImpersonatorLogger(l *slog.Logger) ImpersonatorOption {
	return func(i *Impersonator) { i.logger = l }
}

func WithImpersonatorClock(now func() time.Time) ImpersonatorOption {
	return func(i *Impersonator) { i.now = now }
}

func NewImpersonator(grants GrantStorage, cfg Config, opts ...ImpersonatorOption) *Impersonator {
	if cfg.ImpersonationTTL <= 0 {
		cfg.ImpersonationTTL = 15 * time.Minute
	}
	i := &Impersonator{
		grants: grants,
		secret: cfg.ImpersonationSecret,
		ttl:    cfg.ImpersonationTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Grant persists a grant row for the operator/tenant pair and mints the
// matching token.
func (i *Impersonator) Grant(ctx context.Context, operatorID, operatorEmail, tenantID string) (*Ticket, error) {
	now := i.now().UTC()
	g := &ImpersonationGrant{
		ID:            uuid.New(),
		OperatorID:    operatorID,
		OperatorEmail: operatorEmail,
		TenantID:      tenantID,
		ExpiresAt:     now.Add(i.ttl),
		CreatedAt:     now,
	}
	if err := i.grants.Insert(ctx, g); err != nil {
		return nil, err
	}

	tok, err := token.GenerateToken(impersonationPayload{
		GrantID:    g.ID,
		OperatorID: operatorID,
		TenantID:   tenantID,
		ExpiresAt:  g.ExpiresAt.Unix(),
	}, i.secret)
	if err != nil {
		return nil, err
	}

	i.logger.InfoContext(ctx, "impersonation granted",
		slog.String("operator_id", operatorID),
		slog.String("tenant_id", tenantID),
		slog.String("grant_id", g.ID.String()))

	return &Ticket{
		GrantID:  g.ID,
		Token:    tok,
		TenantID: tenantID,
		Banner: fmt.Sprintf("Impersonating tenant %s until %s",
			tenantID, g.ExpiresAt.Format(time.RFC3339)),
		ExpiresAt: g.ExpiresAt,
	}, nil
}

// Revoke kills the grant. Outstanding tokens for it stop working on
// their next use.
func (i *Impersonator) Revoke(ctx context.Context, grantID uuid.UUID) error {
	if err := i.grants.Revoke(ctx, grantID, i.now().UTC()); err != nil {
		return err
	}
	i.logger.InfoContext(ctx, "impersonation revoked", slog.String("grant_id", grantID.String()))
	return nil
}

// ParseImpersonation resolves a token into tenant-scoped claims. The
// grant row is consulted on every call: a revoked grant beats an
// unexpired token.
func (i *Impersonator) ParseImpersonation(ctx context.Context, tok string) (*identity.AccessClaims, error) {
	payload, err := token.ParseToken[impersonationPayload](tok, i.secret)
	if err != nil {
		return nil, ErrInvalidImpToken
	}
	now := i.now().UTC()
	if now.Unix() >= payload.ExpiresAt {
		return nil, ErrGrantExpired
	}

	g, err := i.grants.ByID(ctx, payload.GrantID)
	if err != nil {
		return nil, err
	}
	if g.RevokedAt != nil {
		return nil, ErrGrantRevoked
	}
	if now.After(g.ExpiresAt) {
		return nil, ErrGrantExpired
	}

	return &identity.AccessClaims{
		StandardClaims: jwt.StandardClaims{
			ID:        g.ID.String(),
			Subject:   g.OperatorID,
			ExpiresAt: g.ExpiresAt.Unix(),
			IssuedAt:  g.CreatedAt.Unix(),
		},
		Email:        g.OperatorEmail,
		Role:         identity.RoleAdmin,
		TenantID:     g.TenantID,
		Impersonated: true,
		OperatorID:   g.OperatorID,
	}, nil
}
