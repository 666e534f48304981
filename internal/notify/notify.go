// Package notify creates in-app notifications. Creation is fire-and-forget: failures are logged
// and never propagated to the operation that triggered them.
package notify

import (
	"context"
	"fmt"
	"net/url"

	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// Inserter persists notifications.
type Inserter interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
}

// Sink creates notifications for users.
type Sink struct {
	store Inserter
	log   *logger.Logger
}

func NewSink(store Inserter, log *logger.Logger) *Sink {
	return &Sink{store: store, log: log.With("component", "notify")}
}

// Create stores a notification. Empty message and link are stored as NULL.
func (s *Sink) Create(ctx context.Context, userID int64, title, message string, typ model.NotificationType, link string) {
	n := model.Notification{UserId: userID, Title: title, Type: typ}
	if message != "" {
		n.Message = &message
	}
	if link != "" {
		n.Link = &link
	}
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		s.log.Warn("Could not create notification", "user_id", userID, "title", title, "error", err)
	}
}

// ContactAdded announces a newly created contact.
func (s *Sink) ContactAdded(ctx context.Context, c model.Contact) {
	s.Create(ctx, c.UserId,
		"Contact added: "+c.Name,
		"You've successfully added a new contact.",
		model.NotificationSuccess,
		"/contacts?search="+url.QueryEscape(c.Name))
}

// CategoryAdded announces a newly created category.
func (s *Sink) CategoryAdded(ctx context.Context, c model.Category) {
	s.Create(ctx, c.UserId,
		"Category added: "+c.Name,
		"You've successfully created a new category.",
		model.NotificationSuccess,
		"/categories?search="+url.QueryEscape(c.Name))
}

// Birthday reminds the owner of a contact that the contact's birthday is daysUntil days away.
func (s *Sink) Birthday(ctx context.Context, c model.Contact, daysUntil int) {
	s.Create(ctx, c.UserId,
		BirthdayTitle(c.Name, daysUntil),
		"Don't forget to send your wishes!",
		model.NotificationBirthday,
		fmt.Sprintf("/contacts/%d/edit", c.Id))
}

// BirthdayTitle phrases the title of a birthday notification.
func BirthdayTitle(name string, daysUntil int) string {
	switch daysUntil {
	case 0:
		return fmt.Sprintf("%s's birthday is today!", name)
	case 1:
		return fmt.Sprintf("%s's birthday in 1 day", name)
	default:
		return fmt.Sprintf("%s's birthday in %d days", name, daysUntil)
	}
}
