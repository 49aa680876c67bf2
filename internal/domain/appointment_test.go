package domain

import (
	"testing"
	"time"
)

func TestAppointmentStatusTransitions(t *testing.T) {
	cases := []struct {
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{StatusBooked, StatusCompleted, true},
		{StatusBooked, StatusCancelled, true},
		{StatusBooked, StatusBooked, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusBooked, false},
		{StatusCancelled, StatusBooked, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDayOf(t *testing.T) {
	// 2026-09-07 22:30 at UTC-5 is already 2026-09-08 in UTC.
	loc := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2026, 9, 7, 22, 30, 0, 0, loc)

	got := DayOf(local)
	want := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("DayOf = %v, want %v", got, want)
	}

	// Midnight UTC is a fixed point.
	if again := DayOf(got); !again.Equal(got) {
		t.Errorf("DayOf(DayOf(t)) = %v, want %v", again, got)
	}
}
