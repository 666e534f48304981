// Package model contains the JSON shapes of the public HTTP API. Clients may import it.
package model

import "time"

// Contact is a contact as returned by the API. Birthday is formatted as YYYY-MM-DD, or as
// --MM-DD when the year is unknown.
type Contact struct {
	Id         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      *string    `json:"email,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Birthday   string     `json:"birthday"`
	CategoryId *int64     `json:"category_id,omitempty"`
	Active     bool       `json:"active"`
	Locked     bool       `json:"locked"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

// ContactInput is the body of create and update requests. All fields are optional on update;
// only the specified ones are changed.
type ContactInput struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Birthday   *string `json:"birthday,omitempty"`
	CategoryId *int64  `json:"category_id,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// ImportReport is the result of a CSV import.
type ImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
}

// UpcomingBirthday is one entry of the upcoming birthdays view. AgeTurning is omitted when the
// birth year is unknown.
type UpcomingBirthday struct {
	ContactId  int64  `json:"contact_id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	DaysUntil  int    `json:"days_until"`
	AgeTurning *int   `json:"age_turning,omitempty"`
}

// Dashboard summarizes a user's contacts.
type Dashboard struct {
	Contacts       int                `json:"contacts"`
	BirthdaysToday int                `json:"birthdays_today"`
	Upcoming       []UpcomingBirthday `json:"upcoming"`
}

// ReminderRun is the result of a reminder batch run.
type ReminderRun struct {
	Date     string   `json:"date"`
	Users    int      `json:"users"`
	Sent     int      `json:"sent"`
	Skipped  int      `json:"skipped"`
	Failures []string `json:"failures"`
}

// Category is a contact category as returned by the API.
type Category struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}

// SharedBirthday is one entry of a public birthday page. Birthday is formatted like
// Contact.Birthday.
type SharedBirthday struct {
	Name     string  `json:"name"`
	Birthday string  `json:"birthday"`
	Category *string `json:"category,omitempty"`
}

// BirthdayPage is a user's public birthday page, ordered by month and day.
type BirthdayPage struct {
	Name      string           `json:"name"`
	Birthdays []SharedBirthday `json:"birthdays"`
}

// Sharing is the state of a user's public birthday page. Path is the page's URL path.
type Sharing struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}
