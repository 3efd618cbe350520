package operator

import (
	"time"

	"github.com/google/uuid"
)

// Config holds the operator env settings.
type Config struct {
	ImpersonationTTL    time.Duration `env:"IMPERSONATION_TTL" envDefault:"15m"`
	ImpersonationSecret string        `env:"IMPERSONATION_SECRET,required"`
}

// AdminAudit is one operator invocation. Exactly one row is written per
// request that reaches an admin route, success or not.
type AdminAudit struct {
	ID           uuid.UUID `json:"id"`
	ActorID      string    `json:"actor_id"`
	ActorEmail   string    `json:"actor_email,omitempty"`
	Method       string    `json:"method"`
	Endpoint     string    `json:"endpoint"`
	Status       int       `json:"status"`
	Success      bool      `json:"success"`
	TenantID     string    `json:"tenant_id,omitempty"`
	RequestBody  string    `json:"request_body,omitempty"`
	Impersonated bool      `json:"impersonated"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ActorID  string
	TenantID string
	Limit    int
	Offset   int
}

// ImpersonationGrant is the revocable server-side half of an
// impersonation token.
type ImpersonationGrant struct {
	ID            uuid.UUID  `json:"id"`
	OperatorID    string     `json:"operator_id"`
	OperatorEmail string     `json:"operator_email,omitempty"`
	TenantID      string     `json:"tenant_id"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Ticket is what an operator receives when impersonation is granted.
type Ticket struct {
	GrantID   uuid.UUID `json:"grant_id"`
	Token     string    `json:"token"`
	TenantID  string    `json:"tenant_id"`
	Banner    string    `json:"banner"`
	ExpiresAt time.Time `json:"expires_at"`
}
