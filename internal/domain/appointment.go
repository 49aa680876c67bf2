package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "Booked"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// CanTransitionTo reports whether the status change is allowed.
// Completed and Cancelled are terminal.
func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	if s != StatusBooked {
		return false
	}
	return to == StatusCompleted || to == StatusCancelled
}

// Appointment is a confirmed booking of a slot. The natural key is
// (provider_id, day, start_time) across non-cancelled rows. SlotID records
// the slot the booking came from; it may be nil for rows created outside the
// booking flow, in which case capacity is released by matching the natural
// key plus holder instead.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid"`
	RequesterID uuid.UUID         `bun:"requester_id,notnull,type:uuid"`
	ProviderID  uuid.UUID         `bun:"provider_id,notnull,type:uuid"`
	Day         time.Time         `bun:"day,notnull,type:date"`
	StartTime   time.Time         `bun:"start_time,notnull"`
	EndTime     time.Time         `bun:"end_time,notnull"`
	SlotID      *uuid.UUID        `bun:"slot_id,type:uuid"`
	Status      AppointmentStatus `bun:"status,notnull"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = StatusBooked
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
