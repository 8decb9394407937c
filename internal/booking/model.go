package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPendingConfirmation AppointmentStatus = "pending_confirmation"
	StatusConfirmed           AppointmentStatus = "confirmed"
	StatusCheckedIn           AppointmentStatus = "checked_in"
	StatusInProgress          AppointmentStatus = "in_progress"
	StatusCompleted           AppointmentStatus = "completed"
	StatusCancelled           AppointmentStatus = "cancelled"
	StatusNoShow              AppointmentStatus = "no_show"
)

// Interval is a half-open time range [Start, End). An appointment ending
// exactly when another begins does not overlap it, so back-to-back bookings
// are legal.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsValid() bool {
	return !iv.Start.IsZero() && iv.End.After(iv.Start)
}

type Appointment struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	ClientID       uuid.UUID
	OrganizationID *uuid.UUID
	ServiceType    string
	Start          time.Time
	End            time.Time
	Status         AppointmentStatus
	CapacitySlotID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

// TimeWindow is an open interval within a day, in minutes from midnight.
type TimeWindow struct {
	OpenMinute  int `json:"open"`
	CloseMinute int `json:"close"`
}

// WorkingHours maps weekdays to the provider's open windows. JSON keys are
// the numeric weekday (0=Sunday) as produced by encoding/json for int keys.
type WorkingHours map[time.Weekday][]TimeWindow

type Provider struct {
	ID        uuid.UUID
	Name      string
	StateCode string // registered state, default service location
	Hours     WorkingHours
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlockedTime is immutable once created; a change is modeled as a
// replacement row, never an in-place edit.
type BlockedTime struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
	Reason     string
	Recurring  bool // repeats weekly on the same weekday and time of day
	CreatedAt  time.Time
}

type CapacitySlot struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	Start        time.Time
	End          time.Time
	MaxOccupancy int
	BookedCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *CapacitySlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

func (s *CapacitySlot) Full() bool {
	return s.BookedCount >= s.MaxOccupancy
}
