package directory

import "errors"

var (
	ErrEmployeeNotFound     = errors.New("directory: employee not found")
	ErrDepartmentNotFound   = errors.New("directory: department not found")
	ErrPositionNotFound     = errors.New("directory: position not found")
	ErrDuplicateEmployeeID  = errors.New("directory: employee id already taken")
	ErrEmployeeLimitReached = errors.New("directory: employee limit reached")
	ErrWritesSuspended      = errors.New("directory: tenant subscription inactive, writes refused")
	ErrNoTenantScope        = errors.New("directory: no tenant scope on context")
	ErrStorageFailed        = errors.New("directory: storage operation failed")
)
