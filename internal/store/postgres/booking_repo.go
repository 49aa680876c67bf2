package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

// InProviderTx runs fn inside one transaction holding an advisory lock on
// the provider. Units of work for the same provider serialize; disjoint
// providers proceed in parallel. The lock lives only until commit.
func (r *BookingRepo) InProviderTx(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockProvider(ctx context.Context, tx bun.Tx, providerID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID.String()).Exec(ctx)
	return err
}

// Reads outside a unit of work.

func (r *BookingRepo) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	return getSlot(ctx, r.db, slotID)
}

func (r *BookingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *BookingRepo) ListFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	var rows []domain.Slot
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		Where("state = ?", domain.SlotFree).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Slot, error) {
	var rows []domain.Slot
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListAppointmentsByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("requester_id = ?", requesterID).
		OrderExpr("day ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Unit-of-work operations.

func (t bookingTx) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	return getSlot(ctx, t.tx, slotID)
}

func (t bookingTx) ClaimSlot(ctx context.Context, slotID, holderID uuid.UUID) error {
	res, err := t.tx.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("state = ?", domain.SlotHeld).
		Set("holder_id = ?", holderID).
		Set("held_at = now()").
		Set("updated_at = now()").
		Where("id = ?", slotID).
		Where("state = ?", domain.SlotFree).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrSlotUnavailable
	}
	return nil
}

func (t bookingTx) ReleaseSlot(ctx context.Context, slotID, holderID uuid.UUID) error {
	_, err := t.tx.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("state = ?", domain.SlotFree).
		Set("holder_id = NULL").
		Set("held_at = NULL").
		Set("updated_at = now()").
		Where("id = ?", slotID).
		Where("state = ?", domain.SlotHeld).
		Where("holder_id = ?", holderID).
		Exec(ctx)
	return err
}

func (t bookingTx) ReleaseSlotAt(ctx context.Context, providerID uuid.UUID, day, start time.Time, holderID uuid.UUID) error {
	_, err := t.tx.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("state = ?", domain.SlotFree).
		Set("holder_id = NULL").
		Set("held_at = NULL").
		Set("updated_at = now()").
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		Where("start_time = ?", start).
		Where("state = ?", domain.SlotHeld).
		Where("holder_id = ?", holderID).
		Exec(ctx)
	return err
}

func (t bookingTx) ReplaceFreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time, slots []domain.Slot) error {
	_, err := t.tx.NewDelete().
		Model((*domain.Slot)(nil)).
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		Where("state = ?", domain.SlotFree).
		Exec(ctx)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}

	// A Held slot surviving from an earlier publish wins on the natural key.
	_, err = t.tx.NewInsert().
		Model(&slots).
		On("CONFLICT (provider_id, day, start_time, end_time) DO NOTHING").
		Exec(ctx)
	return err
}

func (t bookingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t bookingTx) HasBookedAppointment(ctx context.Context, requesterID, providerID uuid.UUID, day, start time.Time) (bool, error) {
	return t.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("requester_id = ?", requesterID).
		Where("provider_id = ?", providerID).
		Where("day = ?", domain.DayOf(day)).
		Where("start_time = ?", start).
		Where("status = ?", domain.StatusBooked).
		Exists(ctx)
}

func (t bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Appointment{}, store.ErrDuplicateSlot
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (t bookingTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidTransition
	}
	res, err := t.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", to).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := getAppointment(ctx, t.tx, id); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}
	return nil
}

func (t bookingTx) UpdateAppointmentTime(ctx context.Context, id uuid.UUID, day, start, end time.Time, slotID uuid.UUID) error {
	res, err := t.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("day = ?", domain.DayOf(day)).
		Set("start_time = ?", start).
		Set("end_time = ?", end).
		Set("slot_id = ?", slotID).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", domain.StatusBooked).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSlot
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := getAppointment(ctx, t.tx, id); err != nil {
			return err
		}
		return store.ErrNotReschedulable
	}
	return nil
}

// Shared scans over bun.DB and bun.Tx.

func getSlot(ctx context.Context, db bun.IDB, slotID uuid.UUID) (domain.Slot, error) {
	var s domain.Slot
	err := db.NewSelect().
		Model(&s).
		Where("id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Slot{}, store.ErrSlotNotFound
		}
		return domain.Slot{}, err
	}
	return s, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrAppointmentNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
