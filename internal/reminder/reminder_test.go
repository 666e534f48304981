package reminder

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/mail"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/notify"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store/storetest"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []mail.Digest
	failFor map[string]error
	block   map[string]bool
}

func (r *recordingSender) Send(ctx context.Context, d mail.Digest) error {
	if r.block[d.To] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := r.failFor[d.To]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
	return nil
}

func strPtr(s string) *string {
	return &s
}

func addContact(m *storetest.Memory, userID int64, name string, b model.BirthDate) int64 {
	c := model.Contact{UserId: userID, Name: name, Active: true}
	c.SetBirthDate(b)
	return m.AddContact(c)
}

func newJob(m *storetest.Memory, sender mail.Sender, marker Marker, today time.Time) *Job {
	log := logger.Nop()
	return NewJob(m, sender, notify.NewSink(m, log), marker, clock.Fixed(today),
		Options{SendTimeout: 50 * time.Millisecond, Concurrency: 2}, log)
}

var may15 = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

// TestRunGroupsByUser expects one digest per user with all of the user's birthdays.
func TestRunGroupsByUser(t *testing.T) {
	m := storetest.New()
	dirk := m.AddUser(model.User{Name: "Dirk", Email: strPtr("dirk@example.com")})
	addContact(m, dirk, "Anna", model.BirthDate{Year: 1990, Month: time.May, Day: 15})
	addContact(m, dirk, "Ben", model.BirthDate{Month: time.May, Day: 15})
	addContact(m, dirk, "Carl", model.BirthDate{Year: 1990, Month: time.May, Day: 16})
	inactive := model.Contact{UserId: dirk, Name: "Dora", Active: false}
	inactive.SetBirthDate(model.BirthDate{Year: 1980, Month: time.May, Day: 15})
	m.AddContact(inactive)
	locked := model.Contact{UserId: dirk, Name: "Emil", Active: true, Locked: true}
	locked.SetBirthDate(model.BirthDate{Year: 1980, Month: time.May, Day: 15})
	m.AddContact(locked)

	sender := &recordingSender{}
	result, err := newJob(m, sender, NewMemoryMarker(), may15).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-15", result.Date)
	assert.Equal(t, 1, result.Users)
	assert.Equal(t, 1, result.Sent)
	assert.Empty(t, result.Failures)

	require.Len(t, sender.sent, 1)
	d := sender.sent[0]
	assert.Equal(t, "dirk@example.com", d.To)
	require.Len(t, d.Entries, 2)
	assert.Equal(t, "Anna", d.Entries[0].Name)
	assert.Equal(t, "May 15, 1990", d.Entries[0].Date)
	require.NotNil(t, d.Entries[0].Age)
	assert.Equal(t, 34, *d.Entries[0].Age)
	assert.Equal(t, "Ben", d.Entries[1].Name)
	assert.Nil(t, d.Entries[1].Age, "no age without a birth year")

	notifications := m.NotificationsOf(dirk)
	require.Len(t, notifications, 2)
	assert.Equal(t, "Anna's birthday is today!", notifications[0].Title)
	assert.Equal(t, model.NotificationBirthday, notifications[0].Type)
	require.NotNil(t, notifications[0].Link)
	assert.Contains(t, *notifications[0].Link, "/contacts/")
}

// TestRunTwiceSendsOnce expects the second run on the same day to send nothing.
func TestRunTwiceSendsOnce(t *testing.T) {
	m := storetest.New()
	dirk := m.AddUser(model.User{Name: "Dirk", Email: strPtr("dirk@example.com")})
	addContact(m, dirk, "Anna", model.BirthDate{Year: 1990, Month: time.May, Day: 15})

	sender := &recordingSender{}
	job := newJob(m, sender, NewMemoryMarker(), may15)
	_, err := job.Run(context.Background())
	require.NoError(t, err)
	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, sender.sent, 1)
	assert.Len(t, m.NotificationsOf(dirk), 1)
}

// TestRunFailureDoesNotStopOthers expects a failing and a hanging user to be reported while the
// others still get their digest, and the failed ones to be retried by the next run.
func TestRunFailureDoesNotStopOthers(t *testing.T) {
	m := storetest.New()
	for _, email := range []string{"a@example.com", "broken@example.com", "slow@example.com", "d@example.com"} {
		id := m.AddUser(model.User{Name: email, Email: strPtr(email)})
		addContact(m, id, "Friend of "+email, model.BirthDate{Month: time.May, Day: 15})
	}
	sender := &recordingSender{
		failFor: map[string]error{"broken@example.com": errors.New("mailbox full")},
		block:   map[string]bool{"slow@example.com": true},
	}
	marker := NewMemoryMarker()
	result, err := newJob(m, sender, marker, may15).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Users)
	assert.Equal(t, 2, result.Sent)
	assert.Len(t, result.Failures, 2)

	sender.failFor = nil
	sender.block = nil
	result, err = newJob(m, sender, marker, may15).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 2, result.Skipped)
}

// TestRunSkipsUserWithoutEmail expects users without address to be skipped but notified in-app.
func TestRunSkipsUserWithoutEmail(t *testing.T) {
	m := storetest.New()
	dirk := m.AddUser(model.User{Name: "Dirk"})
	addContact(m, dirk, "Anna", model.BirthDate{Month: time.May, Day: 15})

	sender := &recordingSender{}
	result, err := newJob(m, sender, NewMemoryMarker(), may15).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, sender.sent)
	assert.Len(t, m.NotificationsOf(dirk), 1)
}

// TestRunSkipsUnknownUser expects contacts whose owner no longer exists to be counted as skipped
// while the other users still get their reminder.
func TestRunSkipsUnknownUser(t *testing.T) {
	m := storetest.New()
	dirk := m.AddUser(model.User{Name: "Dirk", Email: strPtr("dirk@example.com")})
	addContact(m, dirk, "Anna", model.BirthDate{Month: time.May, Day: 15})
	addContact(m, 999, "Orphan", model.BirthDate{Month: time.May, Day: 15})

	sender := &recordingSender{}
	result, err := newJob(m, sender, NewMemoryMarker(), may15).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Users)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Failures)
}

// TestRunLeapDay expects February 29 birthdays to be celebrated on February 28 of common years.
func TestRunLeapDay(t *testing.T) {
	m := storetest.New()
	dirk := m.AddUser(model.User{Name: "Dirk", Email: strPtr("dirk@example.com")})
	addContact(m, dirk, "Leap", model.BirthDate{Year: 2000, Month: time.February, Day: 29})

	sender := &recordingSender{}
	result, err := newJob(m, sender, NewMemoryMarker(), time.Date(2023, time.February, 28, 9, 0, 0, 0, time.UTC)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 23, *sender.sent[0].Entries[0].Age)

	sender = &recordingSender{}
	result, err = newJob(m, sender, NewMemoryMarker(), time.Date(2024, time.February, 28, 9, 0, 0, 0, time.UTC)).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Users, "in leap years the birthday is on the 29th")
}

// TestRunNoBirthdays expects an empty result.
func TestRunNoBirthdays(t *testing.T) {
	result, err := newJob(storetest.New(), &recordingSender{}, NewMemoryMarker(), may15).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Users)
	assert.Equal(t, []string{}, result.Failures)
}

// TestMemoryMarker checks claim and release.
func TestMemoryMarker(t *testing.T) {
	m := NewMemoryMarker()
	ok, err := m.Claim(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.Claim(context.Background(), "k")
	assert.False(t, ok)
	require.NoError(t, m.Release(context.Background(), "k"))
	ok, _ = m.Claim(context.Background(), "k")
	assert.True(t, ok)
}

// TestRedisMarker runs against a real Redis server when REDIS_URL is set.
func TestRedisMarker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	m, err := NewRedisMarkerFromURL(context.Background(), url)
	require.NoError(t, err)
	defer m.Close()

	key := markerKey("test", time.Now().UnixNano(), "2024-05-15")
	defer m.Release(context.Background(), key)
	ok, err := m.Claim(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Claim(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}
