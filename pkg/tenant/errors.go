package tenant

import "errors"

var (
	// ErrNotFound is returned when the resolved tenant does not exist.
	ErrNotFound = errors.New("tenant: not found")

	// ErrMismatch is returned when the principal's tenant claim disagrees
	// with the subdomain or header source.
	ErrMismatch = errors.New("tenant: claim and request sources disagree")

	// ErrRequired is returned by RequireTenant when a tenant-scoped route
	// is reached under the platform scope.
	ErrRequired = errors.New("tenant: tenant scope required")

	// ErrNoContext is returned when no tenant context has been published
	// for the current request.
	ErrNoContext = errors.New("tenant: no tenant in context")

	// ErrInvalidIdentifier is returned when a resolved identifier fails
	// basic shape validation.
	ErrInvalidIdentifier = errors.New("tenant: invalid identifier")
)
