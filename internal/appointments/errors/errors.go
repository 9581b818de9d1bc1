package errors

import "errors"

var (
	ErrNotFound = errors.New("appointment not found")

	ErrInvalidID = errors.New("invalid appointment ID format")

	ErrSlotNotFound = errors.New("appointment slot not found")

	// ErrLockHeld means another request currently holds the doctor's
	// advisory lock.
	ErrLockHeld = errors.New("doctor lock is held by another request")

	// ErrStatusChanged means a conditional status write matched no document:
	// the appointment left the expected status between read and write.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)
