package booking

import (
	"context"
	"errors"
	"fmt"
)

// CapacityTracker reserves space in group-session slots. For slots with
// max occupancy 1 booking degenerates to the exclusive path, which the
// conflict detector already guards; the tracker only handles shared slots.
type CapacityTracker struct {
	repo Repository
}

func NewCapacityTracker(repo Repository) *CapacityTracker {
	return &CapacityTracker{repo: repo}
}

// Reserve inserts the appointment into the slot. The occupancy increment
// and the appointment insert commit as one transaction: a reservation
// never succeeds while the appointment row fails to persist, and vice
// versa.
func (t *CapacityTracker) Reserve(ctx context.Context, a *Appointment, slot *CapacitySlot) error {
	if slot.MaxOccupancy <= 1 {
		if err := t.repo.CreateConfirmedAppointment(ctx, a); err != nil {
			return fmt.Errorf("create exclusive appointment: %w", err)
		}
		return nil
	}

	slotID := slot.ID
	a.CapacitySlotID = &slotID

	err := t.repo.CreateAppointmentInSlot(ctx, a, slot.ID)
	if err != nil {
		if errors.Is(err, ErrSlotFull) {
			return NewError(CodeSlotFull, "capacity slot is fully booked").
				With("slot_id", slot.ID.String()).
				With("max_occupancy", slot.MaxOccupancy)
		}
		return fmt.Errorf("reserve capacity slot: %w", err)
	}

	return nil
}
