package operator

import "errors"

var (
	ErrGrantNotFound     = errors.New("operator: impersonation grant not found")
	ErrGrantRevoked      = errors.New("operator: impersonation grant revoked")
	ErrGrantExpired      = errors.New("operator: impersonation grant expired")
	ErrInvalidImpToken   = errors.New("operator: invalid impersonation token")
	ErrStorageFailed     = errors.New("operator: storage operation failed")
	ErrRescanUnavailable = errors.New("operator: no rescan task configured")
)
