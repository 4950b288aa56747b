package ingest

import "errors"

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidFilename   = errors.New("invalid filename")
	ErrTooManyRows       = errors.New("file exceeds row limit")
	ErrInvalidMode       = errors.New("invalid conversion mode")

	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrQueueClosed    = errors.New("ingestion queue is closed")
)

// IsClientError reports whether err is caused by the request rather than by
// storage or the pipeline itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrInvalidFilename) ||
		errors.Is(err, ErrTooManyRows) ||
		errors.Is(err, ErrInvalidMode)
}
