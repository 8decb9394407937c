package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)
	ListBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]BlockedTime, error)

	// Conflict candidates: non-cancelled appointments overlapping iv.
	ListActiveAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, iv Interval) ([]Appointment, error)
	ListActiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID, iv Interval) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateConfirmedAppointment inserts the appointment after re-checking
	// for overlap under row locks; ErrIntervalTaken if the re-check fails.
	CreateConfirmedAppointment(ctx context.Context, a *Appointment) error

	// CreateAppointmentInSlot atomically increments the slot's booked count
	// and inserts the appointment in one transaction; ErrSlotFull when the
	// slot is at max occupancy.
	CreateAppointmentInSlot(ctx context.Context, a *Appointment, slotID uuid.UUID) error

	// UpdateAppointmentStatus applies a conditional transition; zero rows
	// updated surfaces as ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// UpdateAppointmentInterval moves an appointment to a new interval,
	// re-checking overlap under row locks while excluding the appointment
	// itself; ErrIntervalTaken if the re-check fails.
	UpdateAppointmentInterval(ctx context.Context, id uuid.UUID, iv Interval) (*Appointment, error)

	FindCapacitySlot(ctx context.Context, providerID uuid.UUID, iv Interval) (*CapacitySlot, error)

	SignedConsentForms(ctx context.Context, clientID uuid.UUID) ([]string, error)

	// Read model for calendar/dashboard surfaces; rendering stays outside
	// the engine.
	ListAppointmentsByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
}
