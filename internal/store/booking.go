package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
)

// BookingTx is the set of slot/appointment mutations available inside a
// provider-scoped unit of work. Every method is atomic with respect to
// concurrent units of work on the same provider; either the whole enclosing
// transaction commits or none of it does.
type BookingTx interface {
	GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)

	// ClaimSlot transitions exactly one Free slot to Held by holderID. The
	// check-and-set is a single step: it fails with ErrSlotUnavailable if
	// the slot is not Free at commit time.
	ClaimSlot(ctx context.Context, slotID, holderID uuid.UUID) error

	// ReleaseSlot returns a Held slot to Free if it is currently held by
	// holderID. It is a no-op, not an error, when no such slot exists.
	ReleaseSlot(ctx context.Context, slotID, holderID uuid.UUID) error

	// ReleaseSlotAt is ReleaseSlot keyed by (provider, day, start) instead
	// of slot id, for appointments that carry no slot reference.
	ReleaseSlotAt(ctx context.Context, providerID uuid.UUID, day, start time.Time, holderID uuid.UUID) error

	// ReplaceFreeSlots deletes the provider's Free slots for the day and
	// inserts the given ones. Inserts colliding with a surviving Held slot
	// on the natural key are skipped; Held slots are never touched.
	ReplaceFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time, slots []domain.Slot) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	// HasBookedAppointment reports whether the requester already holds a
	// Booked appointment with the provider at the given day/start.
	HasBookedAppointment(ctx context.Context, requesterID, providerID uuid.UUID, day, start time.Time) (bool, error)

	// CreateAppointment inserts a Booked appointment. A natural-key
	// collision with a non-cancelled row fails with ErrDuplicateSlot.
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// SetAppointmentStatus transitions id from one status to another as a
	// single conditional step. A row in any other status, or a from/to pair
	// the status table forbids, fails with ErrInvalidTransition.
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) error

	// UpdateAppointmentTime moves a Booked appointment to a new day/time
	// and slot reference. A row no longer Booked fails with
	// ErrNotReschedulable.
	UpdateAppointmentTime(ctx context.Context, id uuid.UUID, day, start, end time.Time, slotID uuid.UUID) error
}

// BookingRepository is the durable slot + appointment store. InProviderTx is
// the transaction boundary for every multi-write operation; reads outside it
// see committed state only.
type BookingRepository interface {
	InProviderTx(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error

	GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	ListFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error)
	ListSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error)
	ListAppointmentsByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Appointment, error)
	ListAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Appointment, error)
}
