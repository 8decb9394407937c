package booking

import (
	"errors"
	"fmt"
)

// Code identifies a booking failure. The set of codes is the contract
// surface downstream subsystems key their display logic on, so codes are
// stable strings, never renamed.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeOutsideWorkingHours    Code = "OUTSIDE_WORKING_HOURS"
	CodeTimeBlocked            Code = "TIME_BLOCKED"
	CodeProviderUnavailable    Code = "PROVIDER_UNAVAILABLE"
	CodeTimeConflict           Code = "TIME_CONFLICT"
	CodeClientUnavailable      Code = "CLIENT_UNAVAILABLE"
	CodeSlotFull               Code = "SLOT_FULL"
	CodeConsentRequired        Code = "CONSENT_REQUIRED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Error is a coded booking failure with structured context (conflicting
// appointment id, required forms, ...) surfaced verbatim to the caller.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// With attaches a context value and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsCode reports whether err carries the given booking code.
func IsCode(err error, code Code) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == code
}

// Repository sentinels.
var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotNotFound        = errors.New("capacity slot not found")

	// ErrSlotFull is returned by the transactional reserve when a capacity
	// slot is at max occupancy.
	ErrSlotFull = errors.New("capacity slot is full")

	// ErrIntervalTaken is the repository's last line of defense: the
	// row-lock re-check found an overlapping appointment at insert time.
	ErrIntervalTaken = errors.New("interval already taken for provider")

	// ErrClientBusy is the client-side counterpart: the insert-time
	// re-check found the client holding an overlapping appointment with
	// some provider.
	ErrClientBusy = errors.New("client already booked in interval")
)
