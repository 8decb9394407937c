package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glowgrid/spa-booking-engine/internal/license"
	"github.com/glowgrid/spa-booking-engine/internal/observability/metrics"
	redisclient "github.com/glowgrid/spa-booking-engine/internal/redis"
	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

// Outcome event types enqueued for asynchronous delivery.
const (
	EventBookingConfirmed   = "booking.confirmed"
	EventBookingRejected    = "booking.rejected"
	EventBookingRescheduled = "booking.rescheduled"
)

// LicenseVerifier is the compliance gate consulted before persisting.
type LicenseVerifier interface {
	Verify(ctx context.Context, providerID uuid.UUID, serviceType, stateCode string) (*license.Verification, error)
}

// Notifier enqueues outcome events after the booking transaction commits.
// Delivery is someone else's job; the engine never waits for it.
type Notifier interface {
	Enqueue(ctx context.Context, eventType string, payload map[string]any) error
}

type BookingRequest struct {
	ProviderID       uuid.UUID
	ClientID         uuid.UUID
	ServiceType      string
	Start            time.Time
	DurationMinutes  int
	ServiceStateCode string     // defaults to the provider's registered state
	OrganizationID   *uuid.UUID // optional
}

func (r BookingRequest) validate() error {
	missing := make([]string, 0, 4)
	if r.ProviderID == uuid.Nil {
		missing = append(missing, "provider_id")
	}
	if r.ClientID == uuid.Nil {
		missing = append(missing, "client_id")
	}
	if r.ServiceType == "" {
		missing = append(missing, "service_type")
	}
	if r.Start.IsZero() {
		missing = append(missing, "start_time")
	}
	if len(missing) > 0 {
		return NewError(CodeValidation, "missing required fields").With("fields", missing)
	}
	if r.DurationMinutes <= 0 {
		return NewError(CodeValidation, "duration must be positive minutes").With("duration_minutes", r.DurationMinutes)
	}
	return nil
}

func (r BookingRequest) interval() Interval {
	return Interval{
		Start: r.Start,
		End:   r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute),
	}
}

type BookingResult struct {
	Appointment  *Appointment
	Verification *license.Verification
	Warnings     []license.Warning
}

// Coordinator orchestrates availability, conflict, capacity, license and
// consent checks under a per-provider lock, then persists the appointment
// in CONFIRMED state.
type Coordinator struct {
	repo         Repository
	locker       redisclient.Locker
	availability *AvailabilityIndex
	capacity     *CapacityTracker
	licenses     LicenseVerifier
	catalog      ServiceCatalog
	notifier     Notifier
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

type CoordinatorConfig struct {
	Repo     Repository
	Locker   redisclient.Locker
	Licenses LicenseVerifier
	Catalog  ServiceCatalog
	Notifier Notifier
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Repo == nil {
		panic("booking: repository required")
	}
	if cfg.Locker == nil {
		panic("booking: locker required")
	}
	if cfg.Licenses == nil {
		panic("booking: license verifier required")
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		repo:         cfg.Repo,
		locker:       cfg.Locker,
		availability: NewAvailabilityIndex(cfg.Repo),
		capacity:     NewCapacityTracker(cfg.Repo),
		licenses:     cfg.Licenses,
		catalog:      catalog,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Book accepts or rejects a booking request. A successful call creates
// exactly one CONFIRMED appointment (and, for capacity slots, one occupancy
// increment); a failed call creates nothing. The provider lock is released
// on every exit path.
func (c *Coordinator) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	started := time.Now()

	result, err := c.book(ctx, req)

	c.observe("book", started, err)
	c.notifyOutcome(ctx, req, result, err)

	return result, err
}

func (c *Coordinator) book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	svc, ok := c.catalog.Lookup(req.ServiceType)
	if !ok {
		return nil, NewError(CodeValidation, "unknown service type").With("service_type", req.ServiceType)
	}

	iv := req.interval()

	provider, err := c.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if _, err := c.repo.GetClientByID(ctx, req.ClientID); err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	stateCode := req.ServiceStateCode
	if stateCode == "" {
		stateCode = provider.StateCode
	}

	var result *BookingResult

	lockWaitStart := time.Now()
	err = c.locker.WithProviderLock(ctx, req.ProviderID, func(lockCtx context.Context) error {
		c.metrics.ObserveLockWait(time.Since(lockWaitStart).Seconds())

		var lockErr error
		result, lockErr = c.runChecksAndPersist(lockCtx, req, svc, iv, stateCode, uuid.Nil)
		return lockErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, NewError(CodeInternal, "could not acquire provider lock").
				With("provider_id", req.ProviderID.String())
		}
		return nil, err
	}

	c.logger.Info("booking confirmed",
		"appointment_id", result.Appointment.ID.String(),
		"provider_id", req.ProviderID.String(),
		"client_id", req.ClientID.String(),
		"service_type", req.ServiceType)

	return result, nil
}

// runChecksAndPersist is the remainder of the booking pipeline once the
// provider lock is held. exclude removes one appointment from conflict
// searches so a reschedule never collides with itself.
func (c *Coordinator) runChecksAndPersist(ctx context.Context, req BookingRequest, svc ServiceDefinition,
	iv Interval, stateCode string, exclude uuid.UUID) (*BookingResult, error) {

	ver, err := c.runChecks(ctx, req, svc, iv, stateCode, exclude)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:             uuid.New(),
		ProviderID:     req.ProviderID,
		ClientID:       req.ClientID,
		OrganizationID: req.OrganizationID,
		ServiceType:    req.ServiceType,
		Start:          iv.Start,
		End:            iv.End,
		Status:         StatusConfirmed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if svc.CapacityBased {
		slot, err := c.repo.FindCapacitySlot(ctx, req.ProviderID, iv)
		if err != nil {
			return nil, fmt.Errorf("load capacity slot: %w", err)
		}
		if err := c.capacity.Reserve(ctx, appt, slot); err != nil {
			if errors.Is(err, ErrClientBusy) {
				return nil, NewError(CodeClientUnavailable, "client was booked while persisting").
					With("client_id", req.ClientID.String())
			}
			return nil, err
		}
	} else {
		if err := c.repo.CreateConfirmedAppointment(ctx, appt); err != nil {
			switch {
			case errors.Is(err, ErrIntervalTaken):
				return nil, NewError(CodeTimeConflict, "interval was taken while persisting").
					With("provider_id", req.ProviderID.String())
			case errors.Is(err, ErrClientBusy):
				return nil, NewError(CodeClientUnavailable, "client was booked while persisting").
					With("client_id", req.ClientID.String())
			}
			return nil, fmt.Errorf("create appointment: %w", err)
		}
	}

	return &BookingResult{
		Appointment:  appt,
		Verification: ver,
		Warnings:     ver.Warnings,
	}, nil
}

// runChecks is the validation pipeline shared by Book and Reschedule:
// availability, provider conflicts, client conflicts, capacity headroom,
// license, consent. Short-circuits on the first failure.
func (c *Coordinator) runChecks(ctx context.Context, req BookingRequest, svc ServiceDefinition,
	iv Interval, stateCode string, exclude uuid.UUID) (*license.Verification, error) {

	within, err := c.availability.WithinWorkingHours(ctx, req.ProviderID, iv)
	if err != nil {
		return nil, err
	}
	if !within {
		return nil, NewError(CodeOutsideWorkingHours, "interval is outside the provider's working hours").
			With("provider_id", req.ProviderID.String())
	}

	blocked, err := c.availability.Blocked(ctx, req.ProviderID, iv)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, NewError(CodeTimeBlocked, "interval intersects blocked time").
			With("provider_id", req.ProviderID.String())
	}

	providerAppts, err := c.repo.ListActiveAppointmentsByProvider(ctx, req.ProviderID, iv)
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	if conflict := FindProviderConflict(iv, providerAppts, exclude); conflict != nil {
		code := CodeTimeConflict
		msg := "interval overlaps an existing appointment"
		if conflict.Interval().Equal(iv) {
			code = CodeProviderUnavailable
			msg = "interval is already booked"
		}
		return nil, NewError(code, msg).
			With("conflicting_appointment_id", conflict.ID.String())
	}

	clientAppts, err := c.repo.ListActiveAppointmentsByClient(ctx, req.ClientID, iv)
	if err != nil {
		return nil, fmt.Errorf("list client appointments: %w", err)
	}
	if conflict := FindClientConflict(iv, clientAppts, exclude); conflict != nil {
		return nil, NewError(CodeClientUnavailable, "client already holds an overlapping appointment").
			With("conflicting_appointment_id", conflict.ID.String()).
			With("conflicting_provider_id", conflict.ProviderID.String())
	}

	if svc.CapacityBased {
		slot, err := c.repo.FindCapacitySlot(ctx, req.ProviderID, iv)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return nil, NewError(CodeValidation, "no capacity slot covers the requested interval").
					With("provider_id", req.ProviderID.String())
			}
			return nil, fmt.Errorf("load capacity slot: %w", err)
		}
		if slot.Full() {
			return nil, NewError(CodeSlotFull, "capacity slot is fully booked").
				With("slot_id", slot.ID.String()).
				With("max_occupancy", slot.MaxOccupancy)
		}
	}

	ver, err := c.licenses.Verify(ctx, req.ProviderID, req.ServiceType, stateCode)
	if err != nil {
		return nil, fmt.Errorf("verify license: %w", err)
	}
	if !ver.Valid {
		licErr := &Error{Code: Code(ver.FailureCode), Message: ver.Message, Context: map[string]any{}}
		for k, v := range ver.Detail {
			licErr.Context[k] = v
		}
		if ver.LicenseNumber != "" {
			licErr.With("license_number", ver.LicenseNumber)
		}
		if !ver.ExpirationDate.IsZero() {
			licErr.With("expiration_date", ver.ExpirationDate.Format(time.RFC3339))
		}
		return nil, licErr
	}

	if len(svc.ConsentForms) > 0 {
		signed, err := c.repo.SignedConsentForms(ctx, req.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load consent forms: %w", err)
		}
		if missing := missingForms(svc.ConsentForms, signed); len(missing) > 0 {
			return nil, NewError(CodeConsentRequired, "signed consent required before booking").
				With("required_forms", missing)
		}
	}

	return ver, nil
}

func missingForms(required, signed []string) []string {
	var missing []string
	for _, form := range required {
		found := false
		for _, s := range signed {
			if s == form {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, form)
		}
	}
	return missing
}

func (c *Coordinator) observe(operation string, started time.Time, err error) {
	outcome := "success"
	code := ""
	if err != nil {
		outcome = "rejected"
		var be *Error
		if errors.As(err, &be) {
			code = string(be.Code)
		} else {
			outcome = "error"
			code = string(CodeInternal)
		}
	}
	c.metrics.ObserveBooking(operation, outcome, code, time.Since(started).Seconds())
}

// notifyOutcome enqueues a fire-and-forget outcome event. Enqueue failures
// are logged, never propagated: notifications must not fail a booking that
// already committed.
func (c *Coordinator) notifyOutcome(ctx context.Context, req BookingRequest, result *BookingResult, bookErr error) {
	if c.notifier == nil {
		return
	}

	payload := map[string]any{
		"provider_id":  req.ProviderID.String(),
		"client_id":    req.ClientID.String(),
		"service_type": req.ServiceType,
		"start_time":   req.Start.Format(time.RFC3339),
	}

	eventType := EventBookingConfirmed
	if bookErr != nil {
		eventType = EventBookingRejected
		var be *Error
		if errors.As(bookErr, &be) {
			payload["code"] = string(be.Code)
		}
	} else if result != nil && result.Appointment != nil {
		payload["appointment_id"] = result.Appointment.ID.String()
	}

	if err := c.notifier.Enqueue(context.WithoutCancel(ctx), eventType, payload); err != nil {
		c.logger.Warn("failed to enqueue booking event", "event_type", eventType, "error", err)
	}
}
