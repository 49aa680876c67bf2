package store

import "errors"

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable means the target slot was not Free at commit time.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrDuplicateBooking means the requester already holds a Booked
	// appointment with this provider at this exact time.
	ErrDuplicateBooking = errors.New("duplicate booking")

	// ErrDuplicateSlot means a non-cancelled appointment already occupies
	// the (provider, day, start) key.
	ErrDuplicateSlot = errors.New("appointment time already taken")

	ErrNotCancellable    = errors.New("appointment is not cancellable")
	ErrNotReschedulable  = errors.New("appointment is not reschedulable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrProviderMismatch  = errors.New("slot belongs to a different provider")
)
