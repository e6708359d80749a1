package model

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost to a concurrent writer.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned for requests rejected before processing.
	ErrInvalidInput = errors.New("invalid input")
)
