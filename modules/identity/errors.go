package identity

import "errors"

var (
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUserDisabled       = errors.New("identity: user is disabled")
	ErrDuplicateEmail     = errors.New("identity: email already registered")
	ErrInvalidResetToken  = errors.New("identity: invalid or expired reset token")
	ErrPermissionNotFound = errors.New("identity: permission not found")
	ErrUnknownAction      = errors.New("identity: unknown permission action")
	ErrStorageFailed      = errors.New("identity: storage operation failed")
)
