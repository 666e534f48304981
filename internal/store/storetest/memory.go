// Package storetest provides an in-memory implementation of the contact store for tests of the
// components that sit on top of it.
package storetest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// Memory holds users, contacts, categories and notifications in maps. A single mutex serializes
// every access; WithUser holds it for the whole callback, so callbacks must only use the Session.
type Memory struct {
	mu            sync.Mutex
	users         map[int64]model.User
	contacts      map[int64]model.Contact
	categories    map[int64]model.Category
	notifications []model.Notification
	nextID        int64

	// FailInsert, when set, is returned by InsertContact for contacts with this name.
	FailInsert map[string]error
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		users:      map[int64]model.User{},
		contacts:   map[int64]model.Contact{},
		categories: map[int64]model.Category{},
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// AddUser stores a user and returns its id.
func (m *Memory) AddUser(u model.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Id == 0 {
		u.Id = m.id()
	}
	m.users[u.Id] = u
	return u.Id
}

// AddContact stores a contact with the next creation-order id and returns it.
func (m *Memory) AddContact(c model.Contact) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Id = m.id()
	m.contacts[c.Id] = c
	return c.Id
}

// AddCategory stores a category and returns its id.
func (m *Memory) AddCategory(c model.Category) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Id = m.id()
	m.categories[c.Id] = c
	return c.Id
}

// ContactsOf returns a snapshot of a user's contacts, oldest first.
func (m *Memory) ContactsOf(userID int64) []model.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contactsOf(userID)
}

func (m *Memory) contactsOf(userID int64) []model.Contact {
	var result []model.Contact
	for _, c := range m.contacts {
		if c.UserId == userID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result
}

// User returns a snapshot of a user.
func (m *Memory) User(id int64) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

// NotificationsOf returns the notifications of a user in creation order.
func (m *Memory) NotificationsOf(userID int64) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Notification
	for _, n := range m.notifications {
		if n.UserId == userID {
			result = append(result, n)
		}
	}
	return result
}

func (m *Memory) UserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UserByBillingCustomer(_ context.Context, customer string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.BillingCustomer != nil && *u.BillingCustomer == customer {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) UsersByIDs(_ context.Context, ids []int64) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *Memory) Categories(_ context.Context, userID int64) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Category
	for _, c := range m.categories {
		if c.UserId == userID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) ActiveContacts(_ context.Context, userID int64) ([]model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Contact
	for _, c := range m.contactsOf(userID) {
		if c.Active && !c.Locked {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *Memory) BirthdayCandidates(_ context.Context, today time.Time) ([]model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leapFallback := today.Month() == time.February && today.Day() == 28 && model.DaysIn(today.Year(), time.February) == 28
	var result []model.Contact
	for _, c := range m.contacts {
		if !c.Active || c.Locked {
			continue
		}
		month, day := c.Birthday.Month(), c.Birthday.Day()
		if (month == today.Month() && day == today.Day()) || (leapFallback && month == time.February && day == 29) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserId != result[j].UserId {
			return result[i].UserId < result[j].UserId
		}
		return result[i].Id < result[j].Id
	})
	return result, nil
}

func (m *Memory) InsertNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Id = m.id()
	m.notifications = append(m.notifications, *n)
	return nil
}

// WithUser runs fn with exclusive access. Changes made through the session are discarded when fn
// returns an error.
func (m *Memory) WithUser(_ context.Context, userID int64, fn func(store.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	session := &memorySession{m: m, user: user, contacts: map[int64]model.Contact{}, nextID: m.nextID}
	for _, c := range m.contactsOf(userID) {
		session.contacts[c.Id] = c
	}
	if err := fn(session); err != nil {
		return err
	}
	for id := range m.contacts {
		if m.contacts[id].UserId == userID {
			delete(m.contacts, id)
		}
	}
	for id, c := range session.contacts {
		m.contacts[id] = c
	}
	m.users[userID] = session.user
	m.nextID = session.nextID
	return nil
}

type memorySession struct {
	m        *Memory
	user     model.User
	contacts map[int64]model.Contact
	nextID   int64
}

func (s *memorySession) sorted() []model.Contact {
	result := make([]model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result
}

func (s *memorySession) User() model.User {
	return s.user
}

func (s *memorySession) ContactStates(context.Context) ([]model.ContactState, error) {
	var states []model.ContactState
	for _, c := range s.sorted() {
		states = append(states, model.ContactState{Id: c.Id, Locked: c.Locked})
	}
	return states, nil
}

func (s *memorySession) SetLocked(_ context.Context, ids []int64, locked bool, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok {
			continue
		}
		c.Locked = locked
		c.LockedAt = nil
		if locked {
			lockedAt := at
			c.LockedAt = &lockedAt
		}
		s.contacts[id] = c
		n++
	}
	return n, nil
}

func (s *memorySession) SetPlan(_ context.Context, plan model.PlanStatus, eventAt time.Time) error {
	s.user.Plan = plan
	s.user.BillingEventAt = sql.NullTime{Time: eventAt, Valid: true}
	return nil
}

func (s *memorySession) SetCanceled(_ context.Context, at *time.Time) error {
	s.user.CanceledAt = sql.NullTime{}
	if at != nil {
		s.user.CanceledAt = sql.NullTime{Time: *at, Valid: true}
	}
	return nil
}

func (s *memorySession) SetSharing(_ context.Context, enabled bool, token *string) error {
	s.user.ShareEnabled, s.user.ShareToken = enabled, token
	return nil
}

func (s *memorySession) CountUnlocked(context.Context) (int, error) {
	n := 0
	for _, c := range s.contacts {
		if !c.Locked {
			n++
		}
	}
	return n, nil
}

func (s *memorySession) EmailExists(_ context.Context, email string) (bool, error) {
	for _, c := range s.contacts {
		if c.Email != nil && *c.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memorySession) Contact(_ context.Context, id int64) (*model.Contact, error) {
	c, ok := s.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *memorySession) InsertContact(_ context.Context, c *model.Contact) error {
	if err := s.m.FailInsert[c.Name]; err != nil {
		return err
	}
	s.nextID++
	c.Id = s.nextID
	c.UserId = s.user.Id
	s.contacts[c.Id] = *c
	return nil
}

func (s *memorySession) UpdateContact(_ context.Context, c *model.Contact) error {
	old, ok := s.contacts[c.Id]
	if !ok {
		return store.ErrNotFound
	}
	c.UserId = s.user.Id
	c.Locked, c.LockedAt = old.Locked, old.LockedAt
	s.contacts[c.Id] = *c
	return nil
}

func (s *memorySession) DeleteContact(_ context.Context, id int64) error {
	if _, ok := s.contacts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}
