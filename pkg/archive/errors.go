package archive

import "errors"

var (
	ErrInvalidConfig  = errors.New("archive: invalid config")
	ErrUploadFailed   = errors.New("archive: failed to upload bundle")
	ErrDownloadFailed = errors.New("archive: failed to download bundle")
	ErrBundleNotFound = errors.New("archive: bundle not found")
)
