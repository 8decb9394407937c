package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

// transitions is the full lifecycle. completed, cancelled and no_show are
// terminal; nothing leaves them.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPendingConfirmation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:           {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:           {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress:          {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func IsTerminal(s AppointmentStatus) bool {
	return len(transitions[s]) == 0
}

func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusPendingConfirmation, StatusConfirmed, StatusCheckedIn,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// StateMachine is the only mutation path for Appointment.status.
type StateMachine struct {
	repo   Repository
	logger *logging.Logger
}

func NewStateMachine(repo Repository, logger *logging.Logger) *StateMachine {
	if logger == nil {
		logger = logging.Default()
	}
	return &StateMachine{repo: repo, logger: logger}
}

// Transition moves an appointment to the target status. An illegal
// transition fails with INVALID_STATE_TRANSITION and leaves the row
// unchanged; the conditional update makes concurrent transitions safe.
func (m *StateMachine) Transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !ValidStatus(to) {
		return nil, NewError(CodeValidation, "unknown appointment status").With("status", string(to))
	}

	appt, err := m.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, to) {
		return nil, NewError(CodeInvalidStateTransition, "transition not allowed").
			With("appointment_id", id.String()).
			With("from", string(appt.Status)).
			With("to", string(to))
	}

	updated, err := m.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The conditional update matched zero rows: a concurrent
			// transition won. Re-read so the error names the actual state.
			current, readErr := m.repo.GetAppointmentByID(ctx, id)
			if readErr != nil {
				return nil, fmt.Errorf("reload appointment after lost transition race: %w", readErr)
			}
			return nil, NewError(CodeInvalidStateTransition, "transition not allowed").
				With("appointment_id", id.String()).
				With("from", string(current.Status)).
				With("to", string(to))
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	m.logger.Info("appointment transitioned",
		"appointment_id", id.String(), "from", string(appt.Status), "to", string(to))

	return updated, nil
}
