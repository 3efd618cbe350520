package usage

import "errors"

var (
	ErrMetricNotFound   = errors.New("usage: metric row not found")
	ErrUnknownDimension = errors.New("usage: unknown limit dimension")
	ErrStorageFailed    = errors.New("usage: storage operation failed")
)
