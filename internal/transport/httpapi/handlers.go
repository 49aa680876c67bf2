package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinicbook/internal/domain"
	"clinicbook/internal/service/booking"
	"clinicbook/internal/store"
)

type handlers struct {
	svc *booking.Service
}

// actorFromRequest reads the caller's identity from the X-Actor-ID and
// X-Actor-Role headers. Authentication is expected at the gateway; these
// headers carry the already-verified identity.
func actorFromRequest(r *http.Request) (booking.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return booking.Actor{}, false
	}
	role := booking.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case booking.RoleRequester, booking.RoleProvider, booking.RoleOperator:
	default:
		return booking.Actor{}, false
	}
	return booking.Actor{ID: id, Role: role}, true
}

func (h *handlers) publishAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
		return
	}

	var req PublishAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	in := booking.PublishInput{
		ProviderID: providerID,
		SlotLength: time.Duration(req.SlotLengthMinutes) * time.Minute,
	}
	for _, d := range req.Days {
		day, err := time.Parse(dayFormat, d.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", "day must be formatted as YYYY-MM-DD")
			return
		}
		pd := booking.PublishDay{Day: day, Enabled: d.Enabled}
		if d.Enabled {
			start, err := domain.ParseClock(d.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "start must be a clock time like 09:00")
				return
			}
			end, err := domain.ParseClock(d.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", "end must be a clock time like 17:00")
				return
			}
			pd.Start = start
			pd.End = end
		}
		in.Days = append(in.Days, pd)
	}

	res, err := h.svc.Publish(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PublishAvailabilityResponse{SlotsCreated: res.SlotsCreated})
}

func (h *handlers) listFreeSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
		return
	}

	from := time.Now().UTC()
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(dayFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be formatted as YYYY-MM-DD")
			return
		}
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		days, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer")
			return
		}
	}

	slots, err := h.svc.ListFreeSlots(r.Context(), providerID, from, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponses(slots))
}

func (h *handlers) listDaySheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
		return
	}
	day, err := time.Parse(dayFormat, r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_day", "day must be formatted as YYYY-MM-DD")
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), actor, providerID, day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponses(slots))
}

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	appt, err := h.svc.Book(r.Context(), actor, slotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), actor, id, slotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.svc.Complete(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (h *handlers) listRequesterAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	requesterID, err := uuid.Parse(chi.URLParam(r, "requesterID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_requester_id", "requesterID must be a valid UUID")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), actor, requesterID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponses(appts))
}

func (h *handlers) listProviderAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return
	}
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
		return
	}
	day, err := time.Parse(dayFormat, r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_day", "day must be formatted as YYYY-MM-DD")
		return
	}

	appts, err := h.svc.ListProviderAppointments(r.Context(), actor, providerID, day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponses(appts))
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid_argument", verr.Error())
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "actor may not perform this operation")
	case errors.Is(err, store.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, store.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, store.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, store.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, "duplicate_booking", err.Error())
	case errors.Is(err, store.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, store.ErrNotCancellable):
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, store.ErrNotReschedulable):
		writeError(w, http.StatusConflict, "not_reschedulable", err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, store.ErrProviderMismatch):
		writeError(w, http.StatusConflict, "provider_mismatch", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
