package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

func publishWindow(t *testing.T, s *Store, providerID uuid.UUID, day time.Time, start, end time.Duration, slotLen time.Duration) []domain.Slot {
	t.Helper()
	ctx := context.Background()
	slots := domain.GenerateSlots(providerID, domain.DayWindow{Day: day, Start: start, End: end}, slotLen)
	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ReplaceFreeSlots(ctx, providerID, day, slots)
	})
	if err != nil {
		t.Fatalf("publish error: %v", err)
	}
	free, err := s.ListFreeSlots(ctx, providerID, day)
	if err != nil {
		t.Fatalf("ListFreeSlots error: %v", err)
	}
	return free
}

func TestClaimSlotIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	free := publishWindow(t, s, providerID, day, 9*time.Hour, 10*time.Hour, 30*time.Minute)
	if len(free) != 2 {
		t.Fatalf("free slots = %d, want 2", len(free))
	}
	target := free[0]

	first := uuid.New()
	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ClaimSlot(ctx, target.ID, first)
	})
	if err != nil {
		t.Fatalf("first claim error: %v", err)
	}

	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ClaimSlot(ctx, target.ID, uuid.New())
	})
	if !errors.Is(err, store.ErrSlotUnavailable) {
		t.Fatalf("second claim err = %v, want %v", err, store.ErrSlotUnavailable)
	}

	slot, err := s.GetSlot(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetSlot error: %v", err)
	}
	if slot.State != domain.SlotHeld || slot.HolderID == nil || *slot.HolderID != first {
		t.Fatalf("slot = %+v, want held by %s", slot, first)
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	free := publishWindow(t, s, providerID, day, 9*time.Hour, 9*time.Hour+30*time.Minute, 30*time.Minute)
	if len(free) != 1 {
		t.Fatalf("free slots = %d, want 1", len(free))
	}
	target := free[0]

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
				return tx.ClaimSlot(ctx, target.ID, uuid.New())
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, store.ErrSlotUnavailable):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
}

func TestReleaseSlotIgnoresWrongHolderAndMissingSlot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	free := publishWindow(t, s, providerID, day, 9*time.Hour, 9*time.Hour+30*time.Minute, 30*time.Minute)
	target := free[0]
	holder := uuid.New()

	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.ClaimSlot(ctx, target.ID, holder); err != nil {
			return err
		}
		// Wrong holder and unknown slot must both be no-ops.
		if err := tx.ReleaseSlot(ctx, target.ID, uuid.New()); err != nil {
			return err
		}
		return tx.ReleaseSlot(ctx, uuid.New(), holder)
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}

	slot, err := s.GetSlot(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetSlot error: %v", err)
	}
	if slot.State != domain.SlotHeld {
		t.Fatalf("state = %q, want %q", slot.State, domain.SlotHeld)
	}

	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ReleaseSlot(ctx, target.ID, holder)
	})
	if err != nil {
		t.Fatalf("release error: %v", err)
	}
	slot, _ = s.GetSlot(ctx, target.ID)
	if slot.State != domain.SlotFree || slot.HolderID != nil || slot.HeldAt != nil {
		t.Fatalf("slot after release = %+v, want free", slot)
	}
}

func TestReplaceFreeSlotsPreservesHeld(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	free := publishWindow(t, s, providerID, day, 9*time.Hour, 10*time.Hour, 30*time.Minute)
	held := free[0]
	holder := uuid.New()
	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ClaimSlot(ctx, held.ID, holder)
	})
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}

	// Republish with a narrower window that still covers the held slot.
	slots := domain.GenerateSlots(providerID, domain.DayWindow{Day: day, Start: 9 * time.Hour, End: 9*time.Hour + 30*time.Minute}, 30*time.Minute)
	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ReplaceFreeSlots(ctx, providerID, day, slots)
	})
	if err != nil {
		t.Fatalf("republish error: %v", err)
	}

	all, err := s.ListSlots(ctx, providerID, day)
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("slots after republish = %d, want 1", len(all))
	}
	if all[0].ID != held.ID || all[0].State != domain.SlotHeld {
		t.Fatalf("surviving slot = %+v, want held %s", all[0], held.ID)
	}

	// Publishing an empty day clears free slots but never held ones.
	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.ReplaceFreeSlots(ctx, providerID, day, nil)
	})
	if err != nil {
		t.Fatalf("clear error: %v", err)
	}
	all, _ = s.ListSlots(ctx, providerID, day)
	if len(all) != 1 || all[0].State != domain.SlotHeld {
		t.Fatalf("slots after clear = %+v, want the held slot only", all)
	}
}

func TestFailedUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	requesterID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	free := publishWindow(t, s, providerID, day, 9*time.Hour, 9*time.Hour+30*time.Minute, 30*time.Minute)
	target := free[0]

	boom := errors.New("boom")
	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.ClaimSlot(ctx, target.ID, requesterID); err != nil {
			return err
		}
		if _, err := tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: requesterID,
			ProviderID:  providerID,
			Day:         day,
			StartTime:   target.StartTime,
			EndTime:     target.EndTime,
			SlotID:      &target.ID,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx err = %v, want %v", err, boom)
	}

	slot, err := s.GetSlot(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetSlot error: %v", err)
	}
	if slot.State != domain.SlotFree {
		t.Fatalf("slot after rollback = %q, want %q", slot.State, domain.SlotFree)
	}
	appts, err := s.ListAppointmentsByRequester(ctx, requesterID)
	if err != nil {
		t.Fatalf("ListAppointmentsByRequester error: %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("appointments after rollback = %d, want 0", len(appts))
	}
}

func TestCreateAppointmentRejectsNaturalKeyDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	start := day.Add(9 * time.Hour)
	end := start.Add(30 * time.Minute)

	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		first, err := tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: uuid.New(),
			ProviderID:  providerID,
			Day:         day,
			StartTime:   start,
			EndTime:     end,
		})
		if err != nil {
			return err
		}

		_, err = tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: uuid.New(),
			ProviderID:  providerID,
			Day:         day,
			StartTime:   start,
			EndTime:     end,
		})
		if !errors.Is(err, store.ErrDuplicateSlot) {
			t.Fatalf("duplicate err = %v, want %v", err, store.ErrDuplicateSlot)
		}

		// Cancelled rows do not occupy the natural key.
		if err := tx.SetAppointmentStatus(ctx, first.ID, domain.StatusBooked, domain.StatusCancelled); err != nil {
			return err
		}
		_, err = tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: uuid.New(),
			ProviderID:  providerID,
			Day:         day,
			StartTime:   start,
			EndTime:     end,
		})
		return err
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func TestSetAppointmentStatusGuardsTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	var apptID uuid.UUID
	err := s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.CreateAppointment(ctx, domain.Appointment{
			RequesterID: uuid.New(),
			ProviderID:  providerID,
			Day:         day,
			StartTime:   day.Add(9 * time.Hour),
			EndTime:     day.Add(9*time.Hour + 30*time.Minute),
		})
		if err != nil {
			return err
		}
		apptID = appt.ID
		return tx.SetAppointmentStatus(ctx, appt.ID, domain.StatusBooked, domain.StatusCompleted)
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}

	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.SetAppointmentStatus(ctx, apptID, domain.StatusBooked, domain.StatusCancelled)
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("err = %v, want %v", err, store.ErrInvalidTransition)
	}

	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.SetAppointmentStatus(ctx, uuid.New(), domain.StatusBooked, domain.StatusCancelled)
	})
	if !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrAppointmentNotFound)
	}

	// Reinstating out of a terminal status is rejected even when the from
	// status matches the row.
	err = s.InProviderTx(ctx, providerID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.SetAppointmentStatus(ctx, apptID, domain.StatusCompleted, domain.StatusBooked)
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("err = %v, want %v", err, store.ErrInvalidTransition)
	}
}
