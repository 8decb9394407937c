package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveSharedSlot(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewCapacityTracker(repo)

	slot := &CapacitySlot{
		ID:           uuid.New(),
		ProviderID:   uuid.New(),
		Start:        monday,
		End:          monday.Add(time.Hour),
		MaxOccupancy: 3,
	}
	repo.slots[slot.ID] = slot

	a := &Appointment{
		ID:         uuid.New(),
		ProviderID: slot.ProviderID,
		ClientID:   uuid.New(),
		Start:      slot.Start,
		End:        slot.End,
		Status:     StatusConfirmed,
	}

	require.NoError(t, tracker.Reserve(context.Background(), a, slot))
	require.NotNil(t, a.CapacitySlotID)
	assert.Equal(t, slot.ID, *a.CapacitySlotID)
	assert.Equal(t, 1, repo.slots[slot.ID].BookedCount)
}

func TestReserveFullSlot(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewCapacityTracker(repo)

	slot := &CapacitySlot{
		ID:           uuid.New(),
		ProviderID:   uuid.New(),
		Start:        monday,
		End:          monday.Add(time.Hour),
		MaxOccupancy: 2,
		BookedCount:  2,
	}
	repo.slots[slot.ID] = slot

	a := &Appointment{ID: uuid.New(), ProviderID: slot.ProviderID, ClientID: uuid.New(), Start: slot.Start, End: slot.End}

	err := tracker.Reserve(context.Background(), a, slot)
	be := requireCode(t, err, CodeSlotFull)
	assert.Equal(t, 2, be.Context["max_occupancy"])
}

func TestReserveSingleOccupancyFallsBackToExclusive(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewCapacityTracker(repo)

	slot := &CapacitySlot{
		ID:           uuid.New(),
		ProviderID:   uuid.New(),
		Start:        monday,
		End:          monday.Add(time.Hour),
		MaxOccupancy: 1,
	}
	repo.slots[slot.ID] = slot

	a := &Appointment{
		ID:         uuid.New(),
		ProviderID: slot.ProviderID,
		ClientID:   uuid.New(),
		Start:      slot.Start,
		End:        slot.End,
		Status:     StatusConfirmed,
	}

	require.NoError(t, tracker.Reserve(context.Background(), a, slot))

	// Exclusive path: no slot attachment, no occupancy bump.
	assert.Nil(t, a.CapacitySlotID)
	assert.Equal(t, 0, repo.slots[slot.ID].BookedCount)
}
