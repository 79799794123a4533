package models

import "errors"

// Error taxonomy shared across stores and handlers. These are terminal for
// the triggering operation and never retried; anything else coming out of a
// store is treated as transient I/O.
var (
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
