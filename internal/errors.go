package internal

import "errors"

var (
	ErrNoRecords = errors.New("no records")

	ErrInvalidFilter = errors.New("invalid filter")
	ErrNoFile        = errors.New("no file uploaded")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("admin access required")
)
