package alerts

import "errors"

var (
	ErrNotFound        = errors.New("alerts: alert not found")
	ErrInvalidAlert    = errors.New("alerts: invalid alert")
	ErrStorageFailed   = errors.New("alerts: storage operation failed")
	ErrAlreadyResolved = errors.New("alerts: alert already resolved")
	ErrDuplicate       = errors.New("alerts: active alert already exists")
)
