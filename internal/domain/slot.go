package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotState string

const (
	SlotFree SlotState = "free"
	SlotHeld SlotState = "held"
)

// Slot is a discrete bookable interval for one provider on one day.
// The natural key is (provider_id, day, start_time, end_time).
type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID uuid.UUID  `bun:"provider_id,notnull,type:uuid"`
	Day        time.Time  `bun:"day,notnull,type:date"`
	StartTime  time.Time  `bun:"start_time,notnull"`
	EndTime    time.Time  `bun:"end_time,notnull"`
	State      SlotState  `bun:"state,notnull"`
	HolderID   *uuid.UUID `bun:"holder_id,type:uuid"`
	HeldAt     *time.Time `bun:"held_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull"`
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.State == "" {
			s.State = SlotFree
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
