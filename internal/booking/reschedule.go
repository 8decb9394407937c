package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/glowgrid/spa-booking-engine/internal/redis"
)

// RescheduleCoordinator re-runs the booking validation pipeline against a
// new interval for an existing appointment. The appointment's own interval
// is excluded from conflict searches; status is left unchanged and the
// original row is untouched on failure.
type RescheduleCoordinator struct {
	c *Coordinator
}

func NewRescheduleCoordinator(c *Coordinator) *RescheduleCoordinator {
	if c == nil {
		panic("booking: coordinator required")
	}
	return &RescheduleCoordinator{c: c}
}

func (r *RescheduleCoordinator) Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time, durationMinutes int) (*BookingResult, error) {
	started := time.Now()

	result, err := r.reschedule(ctx, appointmentID, newStart, durationMinutes)

	r.c.observe("reschedule", started, err)

	if err == nil && r.c.notifier != nil {
		payload := map[string]any{
			"appointment_id": appointmentID.String(),
			"start_time":     newStart.Format(time.RFC3339),
		}
		if enqErr := r.c.notifier.Enqueue(context.WithoutCancel(ctx), EventBookingRescheduled, payload); enqErr != nil {
			r.c.logger.Warn("failed to enqueue reschedule event", "error", enqErr)
		}
	}

	return result, err
}

func (r *RescheduleCoordinator) reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time, durationMinutes int) (*BookingResult, error) {
	if newStart.IsZero() {
		return nil, NewError(CodeValidation, "missing required fields").With("fields", []string{"start_time"})
	}
	if durationMinutes <= 0 {
		return nil, NewError(CodeValidation, "duration must be positive minutes").With("duration_minutes", durationMinutes)
	}

	appt, err := r.c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if IsTerminal(appt.Status) {
		return nil, NewError(CodeInvalidStateTransition, "cannot reschedule a terminal appointment").
			With("appointment_id", appointmentID.String()).
			With("status", string(appt.Status))
	}

	if appt.CapacitySlotID != nil {
		// Moving between group slots means shuffling two occupancy
		// counters; the product flow is cancel-and-rebook instead.
		return nil, NewError(CodeValidation, "capacity-based appointments must be cancelled and rebooked").
			With("appointment_id", appointmentID.String())
	}

	svc, ok := r.c.catalog.Lookup(appt.ServiceType)
	if !ok {
		return nil, NewError(CodeValidation, "unknown service type").With("service_type", appt.ServiceType)
	}

	provider, err := r.c.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	iv := Interval{Start: newStart, End: newStart.Add(time.Duration(durationMinutes) * time.Minute)}
	req := BookingRequest{
		ProviderID:      appt.ProviderID,
		ClientID:        appt.ClientID,
		ServiceType:     appt.ServiceType,
		Start:           newStart,
		DurationMinutes: durationMinutes,
		OrganizationID:  appt.OrganizationID,
	}

	var result *BookingResult

	err = r.c.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		ver, err := r.c.runChecks(lockCtx, req, svc, iv, provider.StateCode, appt.ID)
		if err != nil {
			return err
		}

		updated, err := r.c.repo.UpdateAppointmentInterval(lockCtx, appt.ID, iv)
		if err != nil {
			switch {
			case errors.Is(err, ErrIntervalTaken):
				return NewError(CodeTimeConflict, "interval was taken while persisting").
					With("provider_id", appt.ProviderID.String())
			case errors.Is(err, ErrClientBusy):
				return NewError(CodeClientUnavailable, "client was booked while persisting").
					With("client_id", appt.ClientID.String())
			}
			return fmt.Errorf("update appointment interval: %w", err)
		}

		result = &BookingResult{
			Appointment:  updated,
			Verification: ver,
			Warnings:     ver.Warnings,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, NewError(CodeInternal, "could not acquire provider lock").
				With("provider_id", appt.ProviderID.String())
		}
		return nil, err
	}

	r.c.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID.String(),
		"provider_id", appt.ProviderID.String(),
		"new_start", newStart.Format(time.RFC3339))

	return result, nil
}
