package errors

import "errors"

var (
	ErrNotFound = errors.New("schedule not found")

	ErrInvalidID = errors.New("invalid schedule ID format")

	ErrDayOffNotFound = errors.New("day off not found")

	ErrDuplicateDayOff = errors.New("day off already requested for this date")
)
