package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

// Store is an in-memory BookingRepository. Units of work serialize on a
// per-provider mutex instead of a database transaction; writes are journaled
// so a failing unit of work restores the prior state.
type Store struct {
	mu    sync.Mutex
	slots map[uuid.UUID]domain.Slot
	appts map[uuid.UUID]domain.Appointment

	providerMu sync.Mutex
	providers  map[uuid.UUID]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		slots:     make(map[uuid.UUID]domain.Slot),
		appts:     make(map[uuid.UUID]domain.Appointment),
		providers: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) providerLock(providerID uuid.UUID) *sync.Mutex {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()
	mu, ok := s.providers[providerID]
	if !ok {
		mu = &sync.Mutex{}
		s.providers[providerID] = mu
	}
	return mu
}

func (s *Store) InProviderTx(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := s.providerLock(providerID)
	mu.Lock()
	defer mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return domain.Slot{}, store.ErrSlotNotFound
	}
	return slot, nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Store) ListFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day = domain.DayOf(day)
	out := make([]domain.Slot, 0)
	for _, slot := range s.slots {
		if slot.ProviderID == providerID && slot.Day.Equal(day) && slot.State == domain.SlotFree {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *Store) ListSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day = domain.DayOf(day)
	out := make([]domain.Slot, 0)
	for _, slot := range s.slots {
		if slot.ProviderID == providerID && slot.Day.Equal(day) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *Store) ListAppointmentsByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Appointment, 0)
	for _, appt := range s.appts {
		if appt.RequesterID == requesterID {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *Store) ListAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day = domain.DayOf(day)
	out := make([]domain.Appointment, 0)
	for _, appt := range s.appts {
		if appt.ProviderID == providerID && appt.Day.Equal(day) {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out, nil
}

type memTx struct {
	store *Store
	undo  []func()
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) recordSlot(id uuid.UUID) {
	prev, existed := t.store.slots[id]
	t.undo = append(t.undo, func() {
		if existed {
			t.store.slots[id] = prev
		} else {
			delete(t.store.slots, id)
		}
	})
}

func (t *memTx) recordAppointment(id uuid.UUID) {
	prev, existed := t.store.appts[id]
	t.undo = append(t.undo, func() {
		if existed {
			t.store.appts[id] = prev
		} else {
			delete(t.store.appts, id)
		}
	})
}

func (t *memTx) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	return t.store.GetSlot(ctx, slotID)
}

func (t *memTx) ClaimSlot(ctx context.Context, slotID, holderID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	slot, ok := t.store.slots[slotID]
	if !ok || slot.State != domain.SlotFree {
		return store.ErrSlotUnavailable
	}
	t.recordSlot(slotID)
	now := time.Now().UTC()
	holder := holderID
	slot.State = domain.SlotHeld
	slot.HolderID = &holder
	slot.HeldAt = &now
	slot.UpdatedAt = now
	t.store.slots[slotID] = slot
	return nil
}

func (t *memTx) ReleaseSlot(ctx context.Context, slotID, holderID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	slot, ok := t.store.slots[slotID]
	if !ok || slot.State != domain.SlotHeld || slot.HolderID == nil || *slot.HolderID != holderID {
		return nil
	}
	t.freeSlot(slot)
	return nil
}

func (t *memTx) ReleaseSlotAt(ctx context.Context, providerID uuid.UUID, day, start time.Time, holderID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	day = domain.DayOf(day)
	for _, slot := range t.store.slots {
		if slot.ProviderID != providerID || !slot.Day.Equal(day) || !slot.StartTime.Equal(start) {
			continue
		}
		if slot.State != domain.SlotHeld || slot.HolderID == nil || *slot.HolderID != holderID {
			continue
		}
		t.freeSlot(slot)
	}
	return nil
}

func (t *memTx) freeSlot(slot domain.Slot) {
	t.recordSlot(slot.ID)
	slot.State = domain.SlotFree
	slot.HolderID = nil
	slot.HeldAt = nil
	slot.UpdatedAt = time.Now().UTC()
	t.store.slots[slot.ID] = slot
}

func (t *memTx) ReplaceFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time, slots []domain.Slot) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	day = domain.DayOf(day)

	occupied := make(map[string]bool)
	for id, slot := range t.store.slots {
		if slot.ProviderID != providerID || !slot.Day.Equal(day) {
			continue
		}
		if slot.State == domain.SlotFree {
			t.recordSlot(id)
			delete(t.store.slots, id)
			continue
		}
		occupied[naturalKey(slot)] = true
	}

	now := time.Now().UTC()
	for _, slot := range slots {
		key := naturalKey(slot)
		if occupied[key] {
			continue
		}
		occupied[key] = true
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		slot.ID = id
		slot.ProviderID = providerID
		slot.Day = day
		slot.State = domain.SlotFree
		slot.HolderID = nil
		slot.HeldAt = nil
		slot.CreatedAt = now
		slot.UpdatedAt = now
		t.recordSlot(id)
		t.store.slots[id] = slot
	}
	return nil
}

func naturalKey(s domain.Slot) string {
	return s.StartTime.UTC().Format(time.RFC3339Nano) + "/" + s.EndTime.UTC().Format(time.RFC3339Nano)
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return t.store.GetAppointment(ctx, id)
}

func (t *memTx) HasBookedAppointment(ctx context.Context, requesterID, providerID uuid.UUID, day, start time.Time) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	day = domain.DayOf(day)
	for _, appt := range t.store.appts {
		if appt.RequesterID == requesterID && appt.ProviderID == providerID &&
			appt.Day.Equal(day) && appt.StartTime.Equal(start) && appt.Status == domain.StatusBooked {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	day := domain.DayOf(appt.Day)
	for _, existing := range t.store.appts {
		if existing.ProviderID == appt.ProviderID && existing.Day.Equal(day) &&
			existing.StartTime.Equal(appt.StartTime) && existing.Status != domain.StatusCancelled {
			return domain.Appointment{}, store.ErrDuplicateSlot
		}
	}

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if appt.Status == "" {
		appt.Status = domain.StatusBooked
	}
	now := time.Now().UTC()
	appt.Day = day
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.recordAppointment(appt.ID)
	t.store.appts[appt.ID] = appt
	return appt, nil
}

func (t *memTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidTransition
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	appt, ok := t.store.appts[id]
	if !ok {
		return store.ErrAppointmentNotFound
	}
	if appt.Status != from {
		return store.ErrInvalidTransition
	}
	t.recordAppointment(id)
	appt.Status = to
	appt.UpdatedAt = time.Now().UTC()
	t.store.appts[id] = appt
	return nil
}

func (t *memTx) UpdateAppointmentTime(ctx context.Context, id uuid.UUID, day, start, end time.Time, slotID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	appt, ok := t.store.appts[id]
	if !ok {
		return store.ErrAppointmentNotFound
	}
	if appt.Status != domain.StatusBooked {
		return store.ErrNotReschedulable
	}
	newDay := domain.DayOf(day)
	for otherID, existing := range t.store.appts {
		if otherID == id {
			continue
		}
		if existing.ProviderID == appt.ProviderID && existing.Day.Equal(newDay) &&
			existing.StartTime.Equal(start) && existing.Status != domain.StatusCancelled {
			return store.ErrDuplicateSlot
		}
	}
	t.recordAppointment(id)
	ref := slotID
	appt.Day = newDay
	appt.StartTime = start
	appt.EndTime = end
	appt.SlotID = &ref
	appt.UpdatedAt = time.Now().UTC()
	t.store.appts[id] = appt
	return nil
}

func sortSlots(slots []domain.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}

func sortAppointments(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Day.Equal(appts[j].Day) {
			return appts[i].Day.Before(appts[j].Day)
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
