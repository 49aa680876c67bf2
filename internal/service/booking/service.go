package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/cache"
	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
	RoleOperator  Role = "operator"
)

// Actor identifies who is performing an operation. Authorization here is
// ownership-based; authentication happens upstream.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) valid() bool {
	if a.ID == uuid.Nil {
		return false
	}
	switch a.Role {
	case RoleRequester, RoleProvider, RoleOperator:
		return true
	}
	return false
}

type Service struct {
	repo   store.BookingRepository
	policy domain.HoursPolicy
	slots  *cache.SlotCache
	log    *slog.Logger
}

// NewService wires a booking service. slots may be nil to disable the
// free-slot cache.
func NewService(repo store.BookingRepository, policy domain.HoursPolicy, slots *cache.SlotCache, log *slog.Logger) *Service {
	return &Service{repo: repo, policy: policy, slots: slots, log: log}
}

type PublishDay struct {
	Day     time.Time
	Enabled bool
	Start   time.Duration
	End     time.Duration
}

type PublishInput struct {
	ProviderID uuid.UUID
	SlotLength time.Duration
	Days       []PublishDay
}

type PublishResult struct {
	SlotsCreated int
}

// Publish replaces the free slots for each named day with a freshly
// generated grid. Several entries for the same day act as multiple
// windows on that day. Held slots are never touched, so existing
// bookings survive a republish.
func (s *Service) Publish(ctx context.Context, actor Actor, in PublishInput) (PublishResult, error) {
	if !actor.valid() {
		return PublishResult{}, validationError("actor is required")
	}
	if in.ProviderID == uuid.Nil {
		return PublishResult{}, validationError("provider_id is required")
	}
	if actor.Role == RoleRequester {
		return PublishResult{}, store.ErrForbidden
	}
	if actor.Role == RoleProvider && actor.ID != in.ProviderID {
		return PublishResult{}, store.ErrForbidden
	}
	if len(in.Days) == 0 {
		return PublishResult{}, validationError("at least one day is required")
	}

	type dayPlan struct {
		day   time.Time
		slots []domain.Slot
	}
	var plans []dayPlan
	byDay := make(map[time.Time]int)
	for _, d := range in.Days {
		day := domain.DayOf(d.Day)
		idx, seen := byDay[day]
		if !seen {
			idx = len(plans)
			byDay[day] = idx
			plans = append(plans, dayPlan{day: day})
		}
		if !d.Enabled {
			continue
		}
		if err := s.policy.Validate(d.Start, d.End, in.SlotLength); err != nil {
			return PublishResult{}, validationError(err.Error())
		}
		slots := domain.GenerateSlots(in.ProviderID, domain.DayWindow{Day: day, Start: d.Start, End: d.End}, in.SlotLength)
		plans[idx].slots = append(plans[idx].slots, slots...)
	}

	var created int
	err := s.repo.InProviderTx(ctx, in.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		for _, p := range plans {
			if err := tx.ReplaceFreeSlots(ctx, in.ProviderID, p.day, p.slots); err != nil {
				return err
			}
			created += len(p.slots)
		}
		return nil
	})
	if err != nil {
		return PublishResult{}, err
	}

	days := make([]time.Time, 0, len(plans))
	for _, p := range plans {
		days = append(days, p.day)
	}
	s.slots.Invalidate(ctx, in.ProviderID, days...)

	s.log.InfoContext(ctx, "availability published",
		"provider_id", in.ProviderID,
		"days", len(plans),
		"slots_created", created,
	)
	return PublishResult{SlotsCreated: created}, nil
}

// Book claims a free slot for the acting requester and records the
// appointment in the same unit of work. Losing a race for the slot
// surfaces as ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, actor Actor, slotID uuid.UUID) (domain.Appointment, error) {
	if !actor.valid() {
		return domain.Appointment{}, validationError("actor is required")
	}
	if actor.Role != RoleRequester {
		return domain.Appointment{}, store.ErrForbidden
	}
	if slotID == uuid.Nil {
		return domain.Appointment{}, validationError("slot_id is required")
	}

	// Peek outside the lock to learn which provider to serialize on.
	peek, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return domain.Appointment{}, err
	}

	var appt domain.Appointment
	err = s.repo.InProviderTx(ctx, peek.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			if errors.Is(err, store.ErrSlotNotFound) {
				return store.ErrSlotUnavailable
			}
			return err
		}
		if slot.State != domain.SlotFree {
			return store.ErrSlotUnavailable
		}

		taken, err := tx.HasBookedAppointment(ctx, actor.ID, slot.ProviderID, slot.Day, slot.StartTime)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrDuplicateBooking
		}

		slotRef := slot.ID
		appt, err = tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: actor.ID,
			ProviderID:  slot.ProviderID,
			Day:         slot.Day,
			StartTime:   slot.StartTime,
			EndTime:     slot.EndTime,
			SlotID:      &slotRef,
		})
		if err != nil {
			return err
		}
		return tx.ClaimSlot(ctx, slot.ID, actor.ID)
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.slots.Invalidate(ctx, appt.ProviderID, appt.Day)
	s.log.InfoContext(ctx, "slot booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"requester_id", appt.RequesterID,
	)
	return appt, nil
}

// Cancel moves a booked appointment to Cancelled and releases its slot.
// The owning requester, the appointment's provider, and operators may
// cancel.
func (s *Service) Cancel(ctx context.Context, actor Actor, appointmentID uuid.UUID) (domain.Appointment, error) {
	if !actor.valid() {
		return domain.Appointment{}, validationError("actor is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	peek, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !s.mayAccess(actor, peek) {
		return domain.Appointment{}, store.ErrForbidden
	}

	var appt domain.Appointment
	err = s.repo.InProviderTx(ctx, peek.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err = tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status != domain.StatusBooked {
			return store.ErrNotCancellable
		}
		if err := tx.SetAppointmentStatus(ctx, appt.ID, domain.StatusBooked, domain.StatusCancelled); err != nil {
			return err
		}
		appt.Status = domain.StatusCancelled
		return releaseAppointmentSlot(ctx, tx, appt)
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.slots.Invalidate(ctx, appt.ProviderID, appt.Day)
	s.log.InfoContext(ctx, "appointment cancelled",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"actor_role", actor.Role,
	)
	return appt, nil
}

func (s *Service) mayAccess(actor Actor, appt domain.Appointment) bool {
	switch actor.Role {
	case RoleOperator:
		return true
	case RoleRequester:
		return actor.ID == appt.RequesterID
	case RoleProvider:
		return actor.ID == appt.ProviderID
	}
	return false
}

// Reschedule moves a booked appointment to a different free slot of the
// same provider. The old slot frees and the new one is claimed in one
// unit of work.
func (s *Service) Reschedule(ctx context.Context, actor Actor, appointmentID, newSlotID uuid.UUID) (domain.Appointment, error) {
	if !actor.valid() {
		return domain.Appointment{}, validationError("actor is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if newSlotID == uuid.Nil {
		return domain.Appointment{}, validationError("slot_id is required")
	}
	if actor.Role == RoleProvider {
		return domain.Appointment{}, store.ErrForbidden
	}

	peek, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if actor.Role == RoleRequester && actor.ID != peek.RequesterID {
		return domain.Appointment{}, store.ErrForbidden
	}

	var appt domain.Appointment
	err = s.repo.InProviderTx(ctx, peek.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err = tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status != domain.StatusBooked {
			return store.ErrNotReschedulable
		}

		slot, err := tx.GetSlot(ctx, newSlotID)
		if err != nil {
			if errors.Is(err, store.ErrSlotNotFound) {
				return store.ErrSlotUnavailable
			}
			return err
		}
		if slot.ProviderID != appt.ProviderID {
			return store.ErrProviderMismatch
		}
		if slot.State != domain.SlotFree {
			return store.ErrSlotUnavailable
		}

		if err := releaseAppointmentSlot(ctx, tx, appt); err != nil {
			return err
		}
		if err := tx.UpdateAppointmentTime(ctx, appt.ID, slot.Day, slot.StartTime, slot.EndTime, slot.ID); err != nil {
			return err
		}
		if err := tx.ClaimSlot(ctx, slot.ID, appt.RequesterID); err != nil {
			return err
		}

		slotRef := slot.ID
		appt.Day = slot.Day
		appt.StartTime = slot.StartTime
		appt.EndTime = slot.EndTime
		appt.SlotID = &slotRef
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.slots.Invalidate(ctx, appt.ProviderID, peek.Day, appt.Day)
	s.log.InfoContext(ctx, "appointment rescheduled",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
	)
	return appt, nil
}

// Complete marks a booked appointment as Completed. Only the
// appointment's provider or an operator may complete; the slot stays
// held so the interval is not rebookable.
func (s *Service) Complete(ctx context.Context, actor Actor, appointmentID uuid.UUID) (domain.Appointment, error) {
	if !actor.valid() {
		return domain.Appointment{}, validationError("actor is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if actor.Role == RoleRequester {
		return domain.Appointment{}, store.ErrForbidden
	}

	peek, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if actor.Role == RoleProvider && actor.ID != peek.ProviderID {
		return domain.Appointment{}, store.ErrForbidden
	}

	var appt domain.Appointment
	err = s.repo.InProviderTx(ctx, peek.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err = tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := tx.SetAppointmentStatus(ctx, appt.ID, domain.StatusBooked, domain.StatusCompleted); err != nil {
			return err
		}
		appt.Status = domain.StatusCompleted
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.log.InfoContext(ctx, "appointment completed", "appointment_id", appt.ID)
	return appt, nil
}

// GetAppointment returns one appointment. Visible to the owning
// requester, the appointment's provider, and operators.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, appointmentID uuid.UUID) (domain.Appointment, error) {
	if !actor.valid() {
		return domain.Appointment{}, validationError("actor is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !s.mayAccess(actor, appt) {
		return domain.Appointment{}, store.ErrForbidden
	}
	return appt, nil
}

// releaseAppointmentSlot frees the capacity behind an appointment. The
// slot reference is preferred; without one the slot is matched on the
// appointment's provider, day, start and holder.
func releaseAppointmentSlot(ctx context.Context, tx store.BookingTx, appt domain.Appointment) error {
	if appt.SlotID != nil {
		return tx.ReleaseSlot(ctx, *appt.SlotID, appt.RequesterID)
	}
	return tx.ReleaseSlotAt(ctx, appt.ProviderID, appt.Day, appt.StartTime, appt.RequesterID)
}

// ListFreeSlots returns the free slots for a provider over a range of
// days, serving each day from the cache when possible. Any caller may
// browse availability.
func (s *Service) ListFreeSlots(ctx context.Context, providerID uuid.UUID, from time.Time, days int) ([]domain.Slot, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	if days < 1 {
		return nil, validationError("days must be at least 1")
	}
	if days > 31 {
		return nil, validationError("days must be at most 31")
	}

	start := domain.DayOf(from)
	out := make([]domain.Slot, 0)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)

		cached, err := s.slots.GetFreeSlots(ctx, providerID, day)
		if err == nil {
			out = append(out, cached...)
			continue
		}
		if !cache.Miss(err) {
			s.log.WarnContext(ctx, "slot cache read failed", "error", err)
		}

		fresh, err := s.repo.ListFreeSlots(ctx, providerID, day)
		if err != nil {
			return nil, err
		}
		s.slots.SetFreeSlots(ctx, providerID, day, fresh)
		out = append(out, fresh...)
	}
	return out, nil
}

// ListSlots returns the full day sheet, free and held, for the
// provider's own view. Providers see only their own sheet.
func (s *Service) ListSlots(ctx context.Context, actor Actor, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	if !actor.valid() {
		return nil, validationError("actor is required")
	}
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	if actor.Role == RoleRequester {
		return nil, store.ErrForbidden
	}
	if actor.Role == RoleProvider && actor.ID != providerID {
		return nil, store.ErrForbidden
	}
	return s.repo.ListSlots(ctx, providerID, day)
}

// ListAppointments returns a requester's appointments. Requesters see
// only their own.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, requesterID uuid.UUID) ([]domain.Appointment, error) {
	if !actor.valid() {
		return nil, validationError("actor is required")
	}
	if requesterID == uuid.Nil {
		return nil, validationError("requester_id is required")
	}
	switch actor.Role {
	case RoleOperator:
	case RoleRequester:
		if actor.ID != requesterID {
			return nil, store.ErrForbidden
		}
	default:
		return nil, store.ErrForbidden
	}
	return s.repo.ListAppointmentsByRequester(ctx, requesterID)
}

// ListProviderAppointments returns a provider's appointments for one day.
func (s *Service) ListProviderAppointments(ctx context.Context, actor Actor, providerID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	if !actor.valid() {
		return nil, validationError("actor is required")
	}
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	switch actor.Role {
	case RoleOperator:
	case RoleProvider:
		if actor.ID != providerID {
			return nil, store.ErrForbidden
		}
	default:
		return nil, store.ErrForbidden
	}
	return s.repo.ListAppointmentsByProvider(ctx, providerID, day)
}
