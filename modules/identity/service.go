package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crewplane/pkg/jwt"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
	"github.com/dmitrymomot/crewplane/pkg/password"
	"github.com/dmitrymomot/crewplane/pkg/token"
)

// Config holds the identity env settings.
type Config struct {
	SigningKey       string        `env:"JWT_SIGNING_KEY,required"`
	Issuer           string        `env:"JWT_ISSUER" envDefault:"crewplane"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	ResetTokenSecret string        `env:"RESET_TOKEN_SECRET,required"`
	ResetTokenTTL    time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	ResetURL         string        `env:"PASSWORD_RESET_URL" envDefault:"https://app.crewplane.io/reset-password"`
}

// Auth authenticates users and manages their passwords.
type Auth struct {
	users  UserStorage
	tokens *jwt.Service
	cfg    Config
	policy password.Policy
	email  mailer.EmailSender
	logger *slog.Logger
	now    func() time.Time
}

// AuthOption configures the auth service.
type AuthOption func(*Auth)

// WithPasswordPolicy overrides the default password policy.
func WithPasswordPolicy(p password.Policy) AuthOption {
	return func(a *Auth) { a.policy = p }
}

// WithEmailSender enables reset emails. Without a sender reset requests
// are accepted but only logged.
func WithEmailSender(s mailer.EmailSender) AuthOption {
	return func(a *Auth) { a.email = s }
}

// WithAuthLogger overrides the default logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(a *Auth) { a.logger = l }
}

// WithAuthClock overrides the time source for tests.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Auth) { a.now = now }
}

// NewAuth creates the auth service.
func NewAuth(users UserStorage, cfg Config, opts ...AuthOption) (*Auth, error) {
	tokens, err := jwt.New(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	a := &Auth{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
		policy: password.DefaultPolicy(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Login verifies the credentials and issues an access token. Users of
// suspended or inactive tenants still authenticate; write access is gated
// downstream by subscription state. A deactivated account does not.
func (a *Auth) Login(ctx context.Context, email, pass string) (string, *User, error) {
	u, err := a.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := password.Verify(u.PasswordHash, pass); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return "", nil, ErrUserDisabled
	}

	now := a.now().UTC()
	access, err := a.tokens.Generate(AccessClaims{
		StandardClaims: jwt.StandardClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			Issuer:    a.cfg.Issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(a.cfg.AccessTokenTTL).Unix(),
		},
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
	})
	if err != nil {
		return "", nil, err
	}
	return access, u, nil
}

// ParseAccessToken verifies the signature and temporal claims of a login
// token.
func (a *Auth) ParseAccessToken(access string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := a.tokens.Parse(access, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// resetPayload is the HMAC-signed password reset token body.
type resetPayload struct {
	UserID    uuid.UUID `json:"uid"`
	ExpiresAt int64     `json:"exp"`
}

// GenerateResetToken mints a password reset token for the user. The
// provisioning worker uses the same token as the invitation activation
// link for the new tenant admin.
func (a *Auth) GenerateResetToken(userID uuid.UUID) (string, error) {
	return token.GenerateToken(resetPayload{
		UserID:    userID,
		ExpiresAt: a.now().UTC().Add(a.cfg.ResetTokenTTL).Unix(),
	}, a.cfg.ResetTokenSecret)
}

// RequestPasswordReset emails a reset link to the address if an account
// exists. It deliberately reports nothing about whether one does.
func (a *Auth) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := a.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}

	reset, err := a.GenerateResetToken(u.ID)
	if err != nil {
		return err
	}
	if a.email == nil {
		a.logger.InfoContext(ctx, "no email sender configured, skipping reset email",
			slog.String("user_id", u.ID.String()))
		return nil
	}
	return a.email.SendEmail(ctx, mailer.PasswordReset(u.Email, a.ResetURL(reset)))
}

// ResetPassword validates the token and the new password and replaces the
// stored hash.
func (a *Auth) ResetPassword(ctx context.Context, reset, newPassword string) error {
	payload, err := token.ParseToken[resetPayload](reset, a.cfg.ResetTokenSecret)
	if err != nil {
		return errors.Join(ErrInvalidResetToken, err)
	}
	if a.now().UTC().Unix() > payload.ExpiresAt {
		return ErrInvalidResetToken
	}
	if err := password.Validate(a.policy, newPassword); err != nil {
		return err
	}

	u, err := a.users.ByID(ctx, payload.UserID)
	if err != nil {
		return err
	}
	hash, err := password.Hash(a.policy, newPassword)
	if err != nil {
		return err
	}
	return a.users.UpdatePassword(ctx, u.ID, hash)
}

// EnsureUser returns the account for the email, creating one with a
// random password when none exists. Provisioning uses it for the tenant
// admin: a returning customer keeps their password but the account is
// re-linked to the new tenant and role, so the admin of a fresh workspace
// always lands in it.
func (a *Auth) EnsureUser(ctx context.Context, email, name string, role Role, tenantID string) (*User, bool, error) {
	email = normalizeEmail(email)
	if u, err := a.users.ByEmail(ctx, email); err == nil {
		return a.linkUser(ctx, u, tenantID, role)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	hash, err := password.Hash(a.policy, password.Generate(a.policy))
	if err != nil {
		return nil, false, err
	}
	now := a.now().UTC()
	u := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		TenantID:     tenantID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.Insert(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a concurrent create; the winner's row is the account.
			existing, ferr := a.users.ByEmail(ctx, email)
			if ferr != nil {
				return nil, false, ferr
			}
			return a.linkUser(ctx, existing, tenantID, role)
		}
		return nil, false, err
	}
	return u, true, nil
}

func (a *Auth) linkUser(ctx context.Context, u *User, tenantID string, role Role) (*User, bool, error) {
	if u.TenantID == tenantID && u.Role == role {
		return u, false, nil
	}
	if err := a.users.LinkTenant(ctx, u.ID, tenantID, role); err != nil {
		return nil, false, err
	}
	u.TenantID = tenantID
	u.Role = role
	return u, false, nil
}

// CountUsers returns the tenant's active account count, for the usage
// metering engine.
func (a *Auth) CountUsers(ctx context.Context, tenantID string) (int, error) {
	return a.users.CountByTenant(ctx, tenantID)
}

// ResetURL renders the clickable reset link for a token.
func (a *Auth) ResetURL(reset string) string {
	return fmt.Sprintf("%s?token=%s", a.cfg.ResetURL, url.QueryEscape(reset))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
