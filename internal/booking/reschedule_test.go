package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescheduleSuccess(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	booked, err := env.coord.Book(context.Background(), env.request(monday, 45))
	require.NoError(t, err)

	newStart := monday.Add(4 * time.Hour)
	result, err := resched.Reschedule(context.Background(), booked.Appointment.ID, newStart, 45)
	require.NoError(t, err)

	assert.Equal(t, newStart, result.Appointment.Start)
	assert.Equal(t, newStart.Add(45*time.Minute), result.Appointment.End)
	assert.Equal(t, StatusConfirmed, result.Appointment.Status)

	stored, err := env.repo.GetAppointmentByID(context.Background(), booked.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, newStart, stored.Start)

	events := env.notifier.byType(EventBookingRescheduled)
	require.Len(t, events, 1)
	assert.Equal(t, booked.Appointment.ID.String(), events[0].Payload["appointment_id"])
}

func TestRescheduleOverlappingItself(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	booked, err := env.coord.Book(context.Background(), env.request(monday, 45))
	require.NoError(t, err)

	// The new interval overlaps the old one; the appointment must not
	// conflict with itself.
	newStart := monday.Add(15 * time.Minute)
	result, err := resched.Reschedule(context.Background(), booked.Appointment.ID, newStart, 45)
	require.NoError(t, err)
	assert.Equal(t, newStart, result.Appointment.Start)
}

func TestRescheduleConflictLeavesOriginal(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	booked, err := env.coord.Book(context.Background(), env.request(monday, 45))
	require.NoError(t, err)

	blockerStart := monday.Add(4 * time.Hour)
	req := env.request(blockerStart, 45)
	req.ClientID = env.addClient().ID
	_, err = env.coord.Book(context.Background(), req)
	require.NoError(t, err)

	_, err = resched.Reschedule(context.Background(), booked.Appointment.ID, blockerStart, 45)
	requireCode(t, err, CodeProviderUnavailable)

	// Original interval untouched.
	stored, err := env.repo.GetAppointmentByID(context.Background(), booked.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, monday, stored.Start)
}

func TestRescheduleOutsideWorkingHours(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	booked, err := env.coord.Book(context.Background(), env.request(monday, 45))
	require.NoError(t, err)

	sunday := time.Date(2026, time.September, 13, 10, 0, 0, 0, time.UTC)
	_, err = resched.Reschedule(context.Background(), booked.Appointment.ID, sunday, 45)
	requireCode(t, err, CodeOutsideWorkingHours)
}

func TestRescheduleTerminalAppointment(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	booked, err := env.coord.Book(context.Background(), env.request(monday, 45))
	require.NoError(t, err)

	env.repo.mu.Lock()
	env.repo.appointments[booked.Appointment.ID].Status = StatusCancelled
	env.repo.mu.Unlock()

	_, err = resched.Reschedule(context.Background(), booked.Appointment.ID, monday.Add(time.Hour), 45)
	be := requireCode(t, err, CodeInvalidStateTransition)
	assert.Equal(t, string(StatusCancelled), be.Context["status"])
}

func TestRescheduleCapacityBasedRejected(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	slot := &CapacitySlot{
		ID:           uuid.New(),
		ProviderID:   env.provider.ID,
		Start:        monday,
		End:          monday.Add(time.Hour),
		MaxOccupancy: 5,
	}
	env.repo.slots[slot.ID] = slot

	booked, err := env.coord.Book(context.Background(), BookingRequest{
		ProviderID:      env.provider.ID,
		ClientID:        env.client.ID,
		ServiceType:     "group_yoga",
		Start:           monday,
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	_, err = resched.Reschedule(context.Background(), booked.Appointment.ID, monday.Add(2*time.Hour), 60)
	requireCode(t, err, CodeValidation)
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	_, err := resched.Reschedule(context.Background(), uuid.New(), monday, 45)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleValidation(t *testing.T) {
	env := newTestEnv(t)
	resched := NewRescheduleCoordinator(env.coord)

	_, err := resched.Reschedule(context.Background(), uuid.New(), time.Time{}, 45)
	requireCode(t, err, CodeValidation)

	_, err = resched.Reschedule(context.Background(), uuid.New(), monday, -5)
	requireCode(t, err, CodeValidation)
}
