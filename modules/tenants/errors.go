package tenants

import "errors"

var (
	ErrTenantNotFound    = errors.New("tenants: tenant not found")
	ErrDuplicateTenant   = errors.New("tenants: name or domain already taken")
	ErrInvalidTransition = errors.New("tenants: transition not allowed from current status")
	ErrVersionConflict   = errors.New("tenants: concurrent lifecycle write")
	ErrGraceExpired      = errors.New("tenants: grace period elapsed, operator resume required")
	ErrStorageFailed     = errors.New("tenants: storage operation failed")
)
