package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SentinelYear is written to the birthday column when the real birth year is unknown. It is a
// leap year so that February 29 can be stored.
const SentinelYear = 2000

// BirthDate is a calendar birthday whose year may be unknown (Year == 0).
type BirthDate struct {
	Year  int
	Month time.Month
	Day   int
}

// BirthDateFromStorage converts a stored DATE value back into a BirthDate.
func BirthDateFromStorage(t time.Time, yearKnown bool) BirthDate {
	b := BirthDate{Month: t.Month(), Day: t.Day()}
	if yearKnown {
		b.Year = t.Year()
	}
	return b
}

// YearKnown reports whether the birth year is meaningful.
func (b BirthDate) YearKnown() bool {
	return b.Year != 0
}

// Valid reports whether month and day name a real calendar day in some year.
func (b BirthDate) Valid() bool {
	if b.Month < time.January || b.Month > time.December || b.Day < 1 {
		return false
	}
	year := b.Year
	if year == 0 {
		year = SentinelYear
	}
	return b.Day <= DaysIn(year, b.Month)
}

// Storage returns the value written to the birthday column.
func (b BirthDate) Storage() time.Time {
	year := b.Year
	if year == 0 {
		year = SentinelYear
	}
	return time.Date(year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD, or --MM-DD when the year is unknown.
func (b BirthDate) String() string {
	if !b.YearKnown() {
		return fmt.Sprintf("--%02d-%02d", int(b.Month), b.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", b.Year, int(b.Month), b.Day)
}

// Display formats the date for humans, e.g. "Mar 15, 1990" or "Mar 15".
func (b BirthDate) Display() string {
	if !b.YearKnown() {
		return fmt.Sprintf("%s %d", b.Month.String()[:3], b.Day)
	}
	return b.Storage().Format("Jan 2, 2006")
}

// DaysIn returns the number of days of month m in the given year.
func DaysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ErrInvalidBirthDate is returned by ParseBirthDate for text that is not a calendar date.
var ErrInvalidBirthDate = errors.New("invalid birth date")

// birthDateLayouts are tried in order. Ambiguous numeric forms are resolved by the first match,
// so the ISO form comes first and day-first dotted dates before month-first slashed ones.
var birthDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"2.1.2006",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02T15:04:05Z07:00",
}

// ParseBirthDate parses a birthday. Besides full dates it accepts the ISO 8601 year-less form
// --MM-DD, which yields a BirthDate with an unknown year.
func ParseBirthDate(s string) (BirthDate, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "--"); ok {
		t, err := time.Parse("01-02", rest)
		if err != nil {
			// time.Parse rejects 02-29 without a year, so retry in a leap year.
			t, err = time.Parse("2006-01-02", fmt.Sprintf("%d-%s", SentinelYear, rest))
			if err != nil {
				return BirthDate{}, fmt.Errorf("%w: %q", ErrInvalidBirthDate, s)
			}
		}
		return BirthDate{Month: t.Month(), Day: t.Day()}, nil
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() < 1 {
				break
			}
			return BirthDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
		}
	}
	return BirthDate{}, fmt.Errorf("%w: %q", ErrInvalidBirthDate, s)
}
