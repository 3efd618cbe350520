package httpx

import "net/http"

// Error is an HTTP-mappable error with a stable machine code.
// The zero Message falls back to http.StatusText on render.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Code
}

// WithMessage returns a copy of the error carrying a client-facing message.
func (e Error) WithMessage(msg string) Error {
	e.Message = msg
	return e
}

// NewError creates a custom HTTP error with the given status and code.
func NewError(status int, code string) Error {
	return Error{Status: status, Code: code}
}

// 400 Bad Request
var (
	ErrBadRequest     = Error{Status: http.StatusBadRequest, Code: "bad_request"}
	ErrValidation     = Error{Status: http.StatusBadRequest, Code: "validation_failed"}
	ErrTenantRequired = Error{Status: http.StatusBadRequest, Code: "tenant_required"}
)

// 401 Unauthorized
var (
	ErrUnauthenticated = Error{Status: http.StatusUnauthorized, Code: "unauthenticated"}
)

// 403 Forbidden
var (
	ErrCrossTenantAccess    = Error{Status: http.StatusForbidden, Code: "cross_tenant_access"}
	ErrTenantMismatch       = Error{Status: http.StatusForbidden, Code: "tenant_mismatch"}
	ErrPermissionDenied     = Error{Status: http.StatusForbidden, Code: "permission_denied"}
	ErrSubscriptionInactive = Error{Status: http.StatusForbidden, Code: "subscription_inactive"}
	ErrLimitExceeded        = Error{Status: http.StatusForbidden, Code: "limit_exceeded"}
	ErrFeatureNotInPlan     = Error{Status: http.StatusForbidden, Code: "feature_not_in_plan"}
)

// 404 Not Found
var (
	ErrTenantNotFound = Error{Status: http.StatusNotFound, Code: "tenant_not_found"}
	ErrEntityNotFound = Error{Status: http.StatusNotFound, Code: "entity_not_found"}
	ErrPlanNotFound   = Error{Status: http.StatusNotFound, Code: "plan_not_found"}
)

// 409 Conflict
var (
	ErrConflict              = Error{Status: http.StatusConflict, Code: "conflict"}
	ErrDuplicateTenant       = Error{Status: http.StatusConflict, Code: "duplicate_tenant"}
	ErrDuplicateSubscription = Error{Status: http.StatusConflict, Code: "duplicate_subscription"}
	ErrInvalidTransition     = Error{Status: http.StatusConflict, Code: "invalid_transition"}
)

// 429 Too Many Requests
var (
	ErrRateLimited = Error{Status: http.StatusTooManyRequests, Code: "rate_limited"}
)

// 5xx Server Errors
var (
	ErrInternal       = Error{Status: http.StatusInternalServerError, Code: "internal_error"}
	ErrImmutableField = Error{Status: http.StatusInternalServerError, Code: "immutable_field"}
	ErrUnavailable    = Error{Status: http.StatusServiceUnavailable, Code: "service_unavailable"}
)
