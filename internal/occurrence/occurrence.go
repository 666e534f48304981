// Package occurrence computes when a yearly birthday next falls relative to a given day.
package occurrence

import (
	"sort"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// Occurrence is the next date on which a birthday is celebrated.
type Occurrence struct {
	Date      time.Time
	DaysUntil int
	// AgeTurning is only meaningful when AgeKnown is true.
	AgeTurning int
	AgeKnown   bool
}

// NextOccurrence returns the first day on or after today that falls on month/day. A day that
// does not exist in the candidate year (February 29 outside leap years) is clamped to the last
// day of the month. The returned date is in UTC.
func NextOccurrence(month time.Month, day int, today time.Time) (time.Time, int) {
	today = clock.Day(today)
	candidate := clamp(today.Year(), month, day)
	if candidate.Before(today) {
		candidate = clamp(today.Year()+1, month, day)
	}
	return candidate, daysBetween(today, candidate)
}

// Next computes the occurrence of b relative to today.
func Next(b model.BirthDate, today time.Time) Occurrence {
	date, days := NextOccurrence(b.Month, b.Day, today)
	occ := Occurrence{Date: date, DaysUntil: days}
	if b.YearKnown() {
		occ.AgeTurning = date.Year() - b.Year
		occ.AgeKnown = true
	}
	return occ
}

func clamp(year int, month time.Month, day int) time.Time {
	if last := model.DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// Upcoming pairs a contact with its next occurrence.
type Upcoming struct {
	Contact    model.Contact
	Occurrence Occurrence
}

// Within returns the contacts whose next occurrence is at most days away, nearest first. Ties
// are ordered by name and then by id.
func Within(contacts []model.Contact, today time.Time, days int) []Upcoming {
	var result []Upcoming
	for _, c := range contacts {
		occ := Next(c.BirthDate(), today)
		if occ.DaysUntil <= days {
			result = append(result, Upcoming{Contact: c, Occurrence: occ})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Occurrence.DaysUntil != b.Occurrence.DaysUntil {
			return a.Occurrence.DaysUntil < b.Occurrence.DaysUntil
		}
		if a.Contact.Name != b.Contact.Name {
			return a.Contact.Name < b.Contact.Name
		}
		return a.Contact.Id < b.Contact.Id
	})
	return result
}

// IsToday reports whether b is celebrated on today.
func IsToday(b model.BirthDate, today time.Time) bool {
	_, days := NextOccurrence(b.Month, b.Day, today)
	return days == 0
}
