// Package clock supplies "today" in the server's configured time zone. All scheduling math in
// this module takes the date from a Clock so that it is deterministic under test.
package clock

import "time"

// Clock returns the current calendar day.
type Clock interface {
	// Today returns midnight of the current day, expressed in UTC so that day arithmetic is
	// not disturbed by daylight saving transitions.
	Today() time.Time
	// Now returns the current instant.
	Now() time.Time
}

// System is a Clock backed by the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

// NewSystem returns a System clock for the named IANA zone, falling back to UTC.
func NewSystem(zone string) (System, error) {
	if zone == "" {
		return System{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return System{Location: time.UTC}, err
	}
	return System{Location: loc}, nil
}

func (s System) Now() time.Time {
	return time.Now()
}

func (s System) Today() time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return Day(time.Now().In(loc))
}

// Fixed is a Clock frozen at a given instant.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}

func (f Fixed) Today() time.Time {
	return Day(time.Time(f))
}

// Day strips the time of day from t, keeping t's calendar date, and returns it in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
