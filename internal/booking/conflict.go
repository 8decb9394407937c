package booking

import "github.com/google/uuid"

// FindProviderConflict returns the first non-cancelled appointment whose
// interval overlaps iv. Appointments attached to a capacity slot share
// provider time by design and are skipped. exclude, when non-nil, removes
// one appointment from the search so a reschedule never conflicts with
// itself.
func FindProviderConflict(iv Interval, existing []Appointment, exclude uuid.UUID) *Appointment {
	for i := range existing {
		a := &existing[i]
		if a.ID == exclude {
			continue
		}
		if a.Status == StatusCancelled {
			continue
		}
		if a.CapacitySlotID != nil {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return a
		}
	}
	return nil
}

// FindClientConflict returns the first non-cancelled appointment of the
// client, across all providers, whose interval overlaps iv. A client
// cannot attend two sessions at once, so capacity-slot appointments count
// here.
func FindClientConflict(iv Interval, existing []Appointment, exclude uuid.UUID) *Appointment {
	for i := range existing {
		a := &existing[i]
		if a.ID == exclude {
			continue
		}
		if a.Status == StatusCancelled {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return a
		}
	}
	return nil
}
