package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/glowgrid/spa-booking-engine/internal/booking"
	"github.com/glowgrid/spa-booking-engine/internal/license"
)

type BookingRequestBody struct {
	ProviderID        string    `json:"provider_id"`
	ClientID          string    `json:"client_id"`
	ServiceType       string    `json:"service_type"`
	StartTime         time.Time `json:"start_time"`
	DurationMinutes   int       `json:"duration_minutes"`
	ServiceStateCode  string    `json:"service_state_code,omitempty"`
	SpaOrganizationID string    `json:"spa_organization_id,omitempty"`
}

type RescheduleRequestBody struct {
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

type TransitionRequestBody struct {
	Status string `json:"status"`
}

type AppointmentBody struct {
	ID             uuid.UUID  `json:"id"`
	ProviderID     uuid.UUID  `json:"provider_id"`
	ClientID       uuid.UUID  `json:"client_id"`
	ServiceType    string     `json:"service_type"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"`
	CapacitySlotID *uuid.UUID `json:"capacity_slot_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toAppointmentBody(a *booking.Appointment) *AppointmentBody {
	return &AppointmentBody{
		ID:             a.ID,
		ProviderID:     a.ProviderID,
		ClientID:       a.ClientID,
		ServiceType:    a.ServiceType,
		StartTime:      a.Start,
		EndTime:        a.End,
		Status:         string(a.Status),
		CapacitySlotID: a.CapacitySlotID,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type BookingResponse struct {
	Success             bool                  `json:"success"`
	Appointment         *AppointmentBody      `json:"appointment,omitempty"`
	LicenseVerification *license.Verification `json:"license_verification,omitempty"`
	Warnings            []license.Warning     `json:"warnings,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*AppointmentBody `json:"appointments"`
}

// ErrorResponse matches the engine's failure contract: each error carries
// its code, message and any structured context flattened alongside them.
type ErrorResponse struct {
	Success bool             `json:"success"`
	Errors  []map[string]any `json:"errors"`
}
