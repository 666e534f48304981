package model

import (
	"database/sql"
	"time"
)

// PlanStatus is the billing tier of a user.
type PlanStatus string

const (
	PlanFree       PlanStatus = "free"
	PlanSubscribed PlanStatus = "subscribed"
	PlanAdmin      PlanStatus = "admin"
)

// User is the owner of contacts, categories and notifications. Only the admin plan has an
// unlimited contact quota. CanceledAt is set while a subscription the user canceled can still be
// resumed.
type User struct {
	Id              int64        `json:"id"              db:"id"`
	Name            string       `json:"name"            db:"name"`
	Email           *string      `json:"email,omitempty" db:"email"`
	Plan            PlanStatus   `json:"plan"            db:"plan"`
	BillingCustomer *string      `json:"-"               db:"billing_customer_id"`
	BillingEventAt  sql.NullTime `json:"-"               db:"billing_event_at"`
	CanceledAt      sql.NullTime `json:"-"               db:"subscription_canceled_at"`
	ShareToken      *string      `json:"-"               db:"share_token"`
	ShareEnabled    bool         `json:"share_enabled"   db:"share_enabled"`
	CreatedAt       time.Time    `json:"created_at"      db:"created_at"`
}

// Unlimited reports whether the user is exempt from the free-tier quota.
func (u User) Unlimited() bool {
	return u.Plan == PlanAdmin
}

// Resumable reports whether the user canceled a paid subscription that can be taken up again.
func (u User) Resumable() bool {
	return u.BillingCustomer != nil && u.CanceledAt.Valid && u.Plan == PlanFree
}

// Contact is the data structure for a person whose birthday we remember. The Id is assigned by
// the database in strictly increasing order and doubles as the creation-order key.
type Contact struct {
	Id             int64      `json:"id"                    db:"id"`
	UserId         int64      `json:"user_id"               db:"user_id"`
	CategoryId     *int64     `json:"category_id,omitempty" db:"category_id"`
	Name           string     `json:"name"                  db:"name"`
	Email          *string    `json:"email,omitempty"       db:"email"`
	Phone          *string    `json:"phone,omitempty"       db:"phone"`
	Birthday       time.Time  `json:"-"                     db:"birthday"`
	BirthYearKnown bool       `json:"-"                     db:"birth_year_known"`
	Active         bool       `json:"active"                db:"status"`
	Locked         bool       `json:"locked"                db:"is_locked"`
	LockedAt       *time.Time `json:"locked_at,omitempty"   db:"locked_at"`
	Notes          *string    `json:"notes,omitempty"       db:"notes"`
	CreatedAt      time.Time  `json:"created_at"            db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"            db:"updated_at"`
}

// BirthDate returns the stored birthday without the sentinel year.
func (c Contact) BirthDate() BirthDate {
	return BirthDateFromStorage(c.Birthday, c.BirthYearKnown)
}

// SetBirthDate stores b on the contact, substituting the sentinel year when the year is unknown.
func (c *Contact) SetBirthDate(b BirthDate) {
	c.Birthday = b.Storage()
	c.BirthYearKnown = b.YearKnown()
}

// ContactState is the slice of a contact the entitlement engine looks at.
type ContactState struct {
	Id     int64 `db:"id"`
	Locked bool  `db:"is_locked"`
}

// Category groups contacts. Names are unique per user.
type Category struct {
	Id        int64     `json:"id"         db:"id"`
	UserId    int64     `json:"user_id"    db:"user_id"`
	Name      string    `json:"name"       db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotificationInfo     NotificationType = "info"
	NotificationSuccess  NotificationType = "success"
	NotificationWarning  NotificationType = "warning"
	NotificationBirthday NotificationType = "birthday"
)

// Notification is an in-app message. Only ReadAt changes after creation.
type Notification struct {
	Id        int64            `json:"id"                db:"id"`
	UserId    int64            `json:"-"                 db:"user_id"`
	Title     string           `json:"title"             db:"title"`
	Message   *string          `json:"message,omitempty" db:"message"`
	Type      NotificationType `json:"type"              db:"type"`
	Link      *string          `json:"link,omitempty"    db:"link"`
	ReadAt    *time.Time       `json:"read_at"           db:"read_at"`
	CreatedAt time.Time        `json:"created_at"        db:"created_at"`
}
