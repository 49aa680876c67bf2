package httpapi

import (
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// PublishDayRequest describes one day of a weekly template. Start and End
// are wall-clock strings like "09:00".
type PublishDayRequest struct {
	Day     string `json:"day"`
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

type PublishAvailabilityRequest struct {
	SlotLengthMinutes int                 `json:"slot_length_minutes"`
	Days              []PublishDayRequest `json:"days"`
}

type PublishAvailabilityResponse struct {
	SlotsCreated int `json:"slots_created"`
}

type BookRequest struct {
	SlotID string `json:"slot_id"`
}

type RescheduleRequest struct {
	SlotID string `json:"slot_id"`
}

// SlotResponse carries both full timestamps and the wall-clock form that
// publish requests use.
type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Day        string    `json:"day"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	State      string    `json:"state"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	RequesterID uuid.UUID  `json:"requester_id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	Day         string     `json:"day"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	SlotID      *uuid.UUID `json:"slot_id,omitempty"`
	Status      string     `json:"status"`
}

const dayFormat = "2006-01-02"

func slotResponse(s domain.Slot) SlotResponse {
	return SlotResponse{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		Day:        s.Day.Format(dayFormat),
		Start:      domain.FormatClock(s.StartTime.Sub(s.Day)),
		End:        domain.FormatClock(s.EndTime.Sub(s.Day)),
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		State:      string(s.State),
	}
}

func slotResponses(slots []domain.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse(s))
	}
	return out
}

func appointmentResponse(a domain.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		RequesterID: a.RequesterID,
		ProviderID:  a.ProviderID,
		Day:         a.Day.Format(dayFormat),
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		SlotID:      a.SlotID,
		Status:      string(a.Status),
	}
}

func appointmentResponses(appts []domain.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, appointmentResponse(a))
	}
	return out
}
