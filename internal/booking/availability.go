package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailabilityIndex answers whether an instant of provider time is
// workable. Read-only; working hours and blocked time are maintained by
// the scheduling-admin surface, never by the booking engine.
type AvailabilityIndex struct {
	repo Repository
}

func NewAvailabilityIndex(repo Repository) *AvailabilityIndex {
	return &AvailabilityIndex{repo: repo}
}

func (ix *AvailabilityIndex) WithinWorkingHours(ctx context.Context, providerID uuid.UUID, iv Interval) (bool, error) {
	provider, err := ix.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("load provider: %w", err)
	}
	return HoursContain(provider.Hours, iv), nil
}

func (ix *AvailabilityIndex) Blocked(ctx context.Context, providerID uuid.UUID, iv Interval) (bool, error) {
	blocks, err := ix.repo.ListBlockedTimes(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("load blocked times: %w", err)
	}
	return BlocksIntersect(blocks, iv), nil
}

// HoursContain reports whether iv lies fully within a single open window
// on its start weekday. An interval that straddles windows, days, or the
// closing minute fails. An end exactly at the following midnight counts as
// minute 1440 of the start day.
func HoursContain(hours WorkingHours, iv Interval) bool {
	if !iv.IsValid() {
		return false
	}

	start := iv.Start.UTC()
	end := iv.End.UTC()

	startMin := minuteOfDay(start)
	endMin := minuteOfDay(end)

	if !sameDay(start, end) {
		nextMidnight := startOfDay(start).Add(24 * time.Hour)
		if !end.Equal(nextMidnight) {
			return false
		}
		endMin = 24 * 60
	}

	for _, w := range hours[start.Weekday()] {
		if startMin >= w.OpenMinute && endMin <= w.CloseMinute {
			return true
		}
	}
	return false
}

// BlocksIntersect reports whether iv intersects any blocked time,
// expanding weekly recurring blocks to the relevant date.
func BlocksIntersect(blocks []BlockedTime, iv Interval) bool {
	for _, b := range blocks {
		if b.Recurring {
			if recurringBlockIntersects(b, iv) {
				return true
			}
			continue
		}
		if iv.Overlaps(Interval{Start: b.Start, End: b.End}) {
			return true
		}
	}
	return false
}

func recurringBlockIntersects(b BlockedTime, iv Interval) bool {
	start := iv.Start.UTC()
	if start.Before(startOfDay(b.Start.UTC())) {
		return false
	}
	if start.Weekday() != b.Start.UTC().Weekday() {
		return false
	}

	blockOpen := minuteOfDay(b.Start.UTC())
	blockClose := minuteOfDay(b.End.UTC())
	ivOpen := minuteOfDay(start)
	ivClose := ivOpen + int(iv.Duration().Minutes())

	return ivOpen < blockClose && blockOpen < ivClose
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
