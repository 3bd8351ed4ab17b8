// Package schedule decides which daily logical dates are due and triggers them.
package schedule

import (
	"time"
)

// Schedule is a daily cadence starting at Start. A logical date D becomes due once
// the day after D has begun in Location.
type Schedule struct {
	Start    time.Time
	CatchUp  bool
	Location *time.Location
}

// New returns a schedule with start truncated to midnight in loc.
func New(start time.Time, catchUp bool, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{Start: Midnight(start, loc), CatchUp: catchUp, Location: loc}
}

// Midnight returns the start of t's calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// LatestDue returns the most recent logical date that is due at now.
// ok is false when nothing is due yet.
func (s Schedule) LatestDue(now time.Time) (date time.Time, ok bool) {
	latest := Midnight(now, s.loc()).AddDate(0, 0, -1)
	start := Midnight(s.Start, s.loc())
	if latest.Before(start) {
		return time.Time{}, false
	}
	return latest, true
}

// DueDates returns the logical dates to run at now given the last recorded one.
//
// With catch-up off only the latest due date is returned, and only if it is after last.
// With catch-up on every date after last (or from Start) through the latest due date is
// returned in ascending order.
func (s Schedule) DueDates(now time.Time, last *time.Time) []time.Time {
	latest, ok := s.LatestDue(now)
	if !ok {
		return nil
	}

	if !s.CatchUp {
		if last != nil && !latest.After(Midnight(*last, s.loc())) {
			return nil
		}
		return []time.Time{latest}
	}

	next := Midnight(s.Start, s.loc())
	if last != nil {
		if after := Midnight(*last, s.loc()).AddDate(0, 0, 1); after.After(next) {
			next = after
		}
	}

	var dates []time.Time
	for d := next; !d.After(latest); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// NextDue returns when the day after now's latest due date becomes due, i.e. the next midnight.
func (s Schedule) NextDue(now time.Time) time.Time {
	return Midnight(now, s.loc()).AddDate(0, 0, 1)
}
