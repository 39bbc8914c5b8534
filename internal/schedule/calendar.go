package schedule

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"fieldtrack/internal/db/models"
)

const clockLayout = "15:04"

// Day returns the calendar date of t in loc, anchored at UTC midnight. This is
// the value stored in attendance and intervention date columns.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// At combines a calendar day with a local "HH:MM" clock value in loc.
// time.Date normalizes wall times that fall in a DST gap.
func At(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}

// PlannedWindow returns the absolute planned start and end of an intervention.
// An end at or before the start is taken to fall on the following day.
func PlannedWindow(iv *models.Intervention, loc *time.Location) (start, end time.Time, err error) {
	start, err = At(iv.Date, iv.StartTime, loc)
	if err != nil {
		return start, end, err
	}
	end, err = At(iv.Date, iv.EndTime, loc)
	if err != nil {
		return start, end, err
	}
	if !end.After(start) {
		end, err = At(iv.Date.AddDate(0, 0, 1), iv.EndTime, loc)
	}
	return start, end, err
}

// LoadLocation resolves an IANA zone name, falling back when name is empty or
// unknown.
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
