package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glowgrid/spa-booking-engine/internal/booking"
	"github.com/glowgrid/spa-booking-engine/internal/license"
)

// BookingService is the engine surface the handlers call; tests stub it.
type BookingService interface {
	Book(ctx context.Context, req booking.BookingRequest) (*booking.BookingResult, error)
}

type RescheduleService interface {
	Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time, durationMinutes int) (*booking.BookingResult, error)
}

type TransitionService interface {
	Transition(ctx context.Context, id uuid.UUID, to booking.AppointmentStatus) (*booking.Appointment, error)
}

type AppointmentReader interface {
	ListAppointmentsByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Appointment, error)
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body BookingRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "could not parse JSON body", nil)
			return
		}

		req, err := toBookingRequest(body)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		result, err := svc.Book(r.Context(), req)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Success:             true,
			Appointment:         toAppointmentBody(result.Appointment),
			LicenseVerification: result.Verification,
			Warnings:            result.Warnings,
		})
	}
}

func rescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "id must be a valid UUID", nil)
			return
		}

		var body RescheduleRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "could not parse JSON body", nil)
			return
		}

		result, err := svc.Reschedule(r.Context(), id, body.StartTime, body.DurationMinutes)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BookingResponse{
			Success:             true,
			Appointment:         toAppointmentBody(result.Appointment),
			LicenseVerification: result.Verification,
			Warnings:            result.Warnings,
		})
	}
}

func transitionHandler(svc TransitionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "id must be a valid UUID", nil)
			return
		}

		var body TransitionRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "could not parse JSON body", nil)
			return
		}

		appt, err := svc.Transition(r.Context(), id, booking.AppointmentStatus(body.Status))
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BookingResponse{
			Success:     true,
			Appointment: toAppointmentBody(appt),
		})
	}
}

func listAppointmentsHandler(reader AppointmentReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), "provider_id must be a valid UUID", nil)
			return
		}

		from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeCodedError(w, http.StatusBadRequest, string(booking.CodeValidation), err.Error(), nil)
			return
		}

		appts, err := reader.ListAppointmentsByProviderRange(r.Context(), providerID, from, to)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		resp := ListAppointmentsResponse{Appointments: make([]*AppointmentBody, 0, len(appts))}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentBody(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func toBookingRequest(body BookingRequestBody) (booking.BookingRequest, error) {
	req := booking.BookingRequest{
		ServiceType:      body.ServiceType,
		Start:            body.StartTime,
		DurationMinutes:  body.DurationMinutes,
		ServiceStateCode: body.ServiceStateCode,
	}

	if body.ProviderID != "" {
		id, err := uuid.Parse(body.ProviderID)
		if err != nil {
			return req, booking.NewError(booking.CodeValidation, "provider_id must be a valid UUID")
		}
		req.ProviderID = id
	}
	if body.ClientID != "" {
		id, err := uuid.Parse(body.ClientID)
		if err != nil {
			return req, booking.NewError(booking.CodeValidation, "client_id must be a valid UUID")
		}
		req.ClientID = id
	}
	if body.SpaOrganizationID != "" {
		id, err := uuid.Parse(body.SpaOrganizationID)
		if err != nil {
			return req, booking.NewError(booking.CodeValidation, "spa_organization_id must be a valid UUID")
		}
		req.OrganizationID = &id
	}

	return req, nil
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be an RFC3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be an RFC3339 timestamp")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

// writeBookingError maps engine errors onto the HTTP failure contract.
func writeBookingError(w http.ResponseWriter, err error) {
	var be *booking.Error
	if errors.As(err, &be) {
		writeCodedError(w, statusForCode(be.Code), string(be.Code), be.Message, be.Context)
		return
	}

	switch {
	case errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrClientNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, booking.ErrSlotNotFound):
		writeCodedError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		writeCodedError(w, http.StatusInternalServerError, string(booking.CodeInternal), "internal error", nil)
	}
}

func statusForCode(code booking.Code) int {
	switch code {
	case booking.CodeValidation:
		return http.StatusBadRequest
	case booking.CodeOutsideWorkingHours, booking.CodeTimeBlocked,
		booking.CodeProviderUnavailable, booking.CodeTimeConflict,
		booking.CodeClientUnavailable, booking.CodeSlotFull,
		booking.CodeInvalidStateTransition:
		return http.StatusConflict
	case booking.CodeConsentRequired:
		return http.StatusUnprocessableEntity
	case booking.CodeInternal:
		return http.StatusInternalServerError
	}

	switch string(code) {
	case license.FailNoLicense, license.FailInsufficient, license.FailSuspended,
		license.FailExpired, license.FailWrongState, license.FailCertificationRequired:
		return http.StatusUnprocessableEntity
	case license.FailLookupTimeout:
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, context map[string]any) {
	entry := map[string]any{
		"code":    code,
		"message": message,
	}
	for k, v := range context {
		entry[k] = v
	}
	writeJSON(w, status, ErrorResponse{Success: false, Errors: []map[string]any{entry}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
