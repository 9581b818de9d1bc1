package errors

import "errors"

var (
	ErrNotFound = errors.New("appointment slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	ErrDuplicateSlot = errors.New("slot already exists for this schedule, service and start time")
)
