package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HoursPolicy bounds a provider's bookable day. Start and End are offsets
// from midnight; Granularity is the alignment unit for windows and slot
// lengths. The policy itself is owned by the directory collaborator and
// passed in by callers.
type HoursPolicy struct {
	DayStart    time.Duration
	DayEnd      time.Duration
	Granularity time.Duration
}

// DefaultHoursPolicy is a 09:00-21:00 day with 5-minute alignment.
func DefaultHoursPolicy() HoursPolicy {
	return HoursPolicy{
		DayStart:    9 * time.Hour,
		DayEnd:      21 * time.Hour,
		Granularity: 5 * time.Minute,
	}
}

var (
	ErrSlotLength        = errors.New("slot length must be a positive multiple of the granularity")
	ErrUnalignedWindow   = errors.New("window times must be aligned to the granularity")
	ErrWindowOutOfBounds = errors.New("window times must lie within the daily bounds")
	ErrEmptyWindow       = errors.New("window end must be after window start")
)

// Validate checks a (start, end, slotLen) request against the policy.
// Each precondition fails with its own error so callers can report the
// exact problem.
func (p HoursPolicy) Validate(start, end, slotLen time.Duration) error {
	if slotLen <= 0 || slotLen%p.Granularity != 0 {
		return ErrSlotLength
	}
	if start%p.Granularity != 0 || end%p.Granularity != 0 {
		return ErrUnalignedWindow
	}
	if start < p.DayStart || start > p.DayEnd || end < p.DayStart || end > p.DayEnd {
		return ErrWindowOutOfBounds
	}
	if start >= end {
		return ErrEmptyWindow
	}
	return nil
}

// DayWindow is one day's working window, with Start and End as offsets from
// midnight of Day.
type DayWindow struct {
	Day   time.Time
	Start time.Duration
	End   time.Duration
}

// GenerateSlots expands a validated window into the maximal run of
// back-to-back slots of exactly slotLen, the last one ending at or before
// the window end. Identical inputs always produce the identical sequence;
// an unfillable window produces none. IDs and timestamps are left for the
// store to assign on insert.
func GenerateSlots(providerID uuid.UUID, w DayWindow, slotLen time.Duration) []Slot {
	day := DayOf(w.Day)

	var slots []Slot
	for cur := w.Start; cur+slotLen <= w.End; cur += slotLen {
		slots = append(slots, Slot{
			ProviderID: providerID,
			Day:        day,
			StartTime:  day.Add(cur),
			EndTime:    day.Add(cur + slotLen),
			State:      SlotFree,
		})
	}
	return slots
}

// ParseClock parses a wall-clock string like "09:30" into an offset from
// midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as "15:04".
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
