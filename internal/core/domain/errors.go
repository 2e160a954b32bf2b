package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("invalid job status")
	// ErrConflict means the job's status changed since it was read.
	ErrConflict = errors.New("job status changed concurrently")
)
