package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/birthday-service/internal/migrations"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

var (
	userColumns    = []string{"id", "name", "email", "plan", "billing_customer_id", "billing_event_at", "created_at"}
	contactColumns = []string{"id", "user_id", "category_id", "name", "email", "phone", "birthday",
		"birth_year_known", "status", "is_locked", "locked_at", "notes", "created_at", "updated_at"}
)

// createMockObjects builds a mock database handle and a mock object for defining our expected SQL
// calls.
func createMockObjects(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return db, mock
}

// expectPreparedStatements instructs the mock object to expect that several statements are being
// prepared.
func expectPreparedStatements(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare("SELECT \\* FROM users WHERE id")
	mock.ExpectPrepare("SELECT \\* FROM contacts WHERE id")
	mock.ExpectPrepare("SELECT \\* FROM categories WHERE user_id")
	mock.ExpectPrepare("INSERT INTO notifications")
}

// newStore sets up the store with the mock database.
func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock := createMockObjects(t)
	t.Cleanup(func() { db.Close() })
	expectPreparedStatements(mock)
	s, err := New(db)
	require.NoError(t, err)
	return s, mock
}

func userRow(mock sqlmock.Sqlmock, id int64, plan model.PlanStatus) *sqlmock.Rows {
	return mock.NewRows(userColumns).
		AddRow(id, "Dirk", "dirk@example.com", string(plan), nil, nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func contactRow(rows *sqlmock.Rows, id, userID int64, name string, birthday time.Time) *sqlmock.Rows {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(id, userID, nil, name, nil, nil, birthday, true, true, false, nil, nil, created, created)
}

// TestUserByID expects a user row to be returned for a known id.
func TestUserByID(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(userRow(mock, 7, model.PlanSubscribed))

	user, err := s.UserByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.Id)
	assert.Equal(t, model.PlanSubscribed, user.Plan)
	assert.Equal(t, "dirk@example.com", *user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestUserByIDNotFound expects ErrNotFound for an empty result.
func TestUserByIDNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE id").
		WithArgs(int64(9999)).
		WillReturnRows(mock.NewRows(userColumns))

	_, err := s.UserByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestWithUserCommits expects the user row to be locked, the callback's statements to run in
// the same transaction and the transaction to be committed.
func TestWithUserCommits(t *testing.T) {
	s, mock := newStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectExec("UPDATE contacts SET is_locked = \\?, locked_at = \\? WHERE user_id = \\? AND id IN \\(\\?, \\?\\)").
		WithArgs(true, at, int64(3), int64(21), int64(22)).
		WillReturnResult(sqlmock.NewResult(-1, 2))
	mock.ExpectCommit()

	err := s.WithUser(context.Background(), 3, func(session Session) error {
		assert.Equal(t, model.PlanFree, session.User().Plan)
		n, err := session.SetLocked(context.Background(), []int64{21, 22}, true, at)
		assert.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestWithUserRollsBack expects a failing callback to roll the transaction back.
func TestWithUserRollsBack(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithUser(context.Background(), 3, func(Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestWithUserUnknownUser expects ErrUserNotFound and a rollback without calling the callback.
func TestWithUserUnknownUser(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(4)).
		WillReturnRows(mock.NewRows(userColumns))
	mock.ExpectRollback()

	called := false
	err := s.WithUser(context.Background(), 4, func(Session) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSetLockedNothingToDo expects no statement for an empty id list.
func TestSetLockedNothingToDo(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectCommit()

	err := s.WithUser(context.Background(), 3, func(session Session) error {
		n, err := session.SetLocked(context.Background(), nil, false, time.Now())
		assert.Zero(t, n)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestInsertContact expects the generated id to be assigned to the contact.
func TestInsertContact(t *testing.T) {
	s, mock := newStore(t)
	birthday := time.Date(1969, time.March, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectExec("INSERT INTO contacts").
		WithArgs(int64(3), nil, "Erika Mustermann", nil, nil, birthday, true, true, false, nil, nil).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	contact := model.Contact{Name: "Erika Mustermann", Active: true}
	contact.SetBirthDate(model.BirthDate{Year: 1969, Month: time.March, Day: 4})
	err := s.WithUser(context.Background(), 3, func(session Session) error {
		return session.InsertContact(context.Background(), &contact)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), contact.Id)
	assert.Equal(t, int64(3), contact.UserId)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestBirthdayCandidatesLeapFallback expects February 29 birthdays to be included on
// February 28 of a common year.
func TestBirthdayCandidatesLeapFallback(t *testing.T) {
	s, mock := newStore(t)
	rows := contactRow(mock.NewRows(contactColumns), 1, 3, "Leap", time.Date(1996, 2, 29, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery("SELECT \\* FROM contacts").
		WithArgs(2, 28, true).
		WillReturnRows(rows)

	contacts, err := s.BirthdayCandidates(context.Background(), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Leap", contacts[0].Name)
	assert.Equal(t, model.BirthDate{Year: 1996, Month: time.February, Day: 29}, contacts[0].BirthDate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestContactsQuery expects name prefix, birthday and paging to become query arguments.
func TestContactsQuery(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery("SELECT \\* FROM contacts WHERE user_id = \\? AND name LIKE \\? AND MONTH\\(birthday\\) = \\? AND DAY\\(birthday\\) = \\? ORDER BY birthday DESC, id ASC LIMIT \\? OFFSET \\?").
		WithArgs(int64(3), "Er\\%%", 11, 29, 20, 40).
		WillReturnRows(mock.NewRows(contactColumns))

	contacts, err := s.Contacts(context.Background(), 3, ContactQuery{
		Name: "Er%", Month: 11, Day: 29, OrderBy: "birthday", Descending: true, Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestContactsInvalidOrder expects unknown order columns to be rejected before any SQL runs.
func TestContactsInvalidOrder(t *testing.T) {
	s, mock := newStore(t)
	_, err := s.Contacts(context.Background(), 3, ContactQuery{OrderBy: "password; DROP TABLE"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestInsertNotification expects the prepared insert to be used.
func TestInsertNotification(t *testing.T) {
	s, mock := newStore(t)
	message := "You've successfully added a new contact."
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(3), "Contact added: Erika", &message, model.NotificationSuccess, nil).
		WillReturnResult(sqlmock.NewResult(5, 1))

	n := model.Notification{UserId: 3, Title: "Contact added: Erika", Message: &message, Type: model.NotificationSuccess}
	require.NoError(t, s.InsertNotification(context.Background(), &n))
	assert.Equal(t, int64(5), n.Id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDeleteNotificationNotFound expects ErrNotFound when no row was deleted.
func TestDeleteNotificationNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec("DELETE FROM notifications").
		WithArgs(int64(8), int64(3)).
		WillReturnResult(sqlmock.NewResult(-1, 0))

	assert.ErrorIs(t, s.DeleteNotification(context.Background(), 3, 8), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailExistsCaseSensitive expects the duplicate check to compare with a binary collation, so
// that "Anna@x.com" and "anna@x.com" are different addresses.
func TestEmailExistsCaseSensitive(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM contacts WHERE user_id = \\? AND email = \\? COLLATE utf8mb4_bin").
		WithArgs(int64(3), "Anna@x.com").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	err := s.WithUser(context.Background(), 3, func(session Session) error {
		exists, err := session.EmailExists(context.Background(), "Anna@x.com")
		assert.False(t, exists)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestEmailColumnBinaryCollation expects the migrations to give contacts.email a binary collation,
// otherwise the unique index rejects case variants the duplicate check lets through.
func TestEmailColumnBinaryCollation(t *testing.T) {
	up, err := fs.ReadFile(migrations.FS, "000002_share_and_cancel.up.sql")
	require.NoError(t, err)
	assert.Regexp(t, `MODIFY email VARCHAR\(255\) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`, string(up))
}

// TestSetCanceled expects the cancellation mark to be written and reflected in the session's user.
func TestSetCanceled(t *testing.T) {
	s, mock := newStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(userRow(mock, 3, model.PlanFree))
	mock.ExpectExec("UPDATE users SET subscription_canceled_at = \\? WHERE id = \\?").
		WithArgs(at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithUser(context.Background(), 3, func(session Session) error {
		if err := session.SetCanceled(context.Background(), &at); err != nil {
			return err
		}
		assert.True(t, session.User().CanceledAt.Valid)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestUserByShareToken expects only users with sharing enabled to be found.
func TestUserByShareToken(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE share_token = \\? AND share_enabled = TRUE").
		WithArgs("abc").
		WillReturnRows(userRow(mock, 7, model.PlanFree))
	mock.ExpectQuery("SELECT \\* FROM users WHERE share_token = \\? AND share_enabled = TRUE").
		WithArgs("off").
		WillReturnRows(mock.NewRows(userColumns))

	user, err := s.UserByShareToken(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.Id)
	_, err = s.UserByShareToken(context.Background(), "off")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestInsertCategory expects the new id to be assigned and a unique key violation to be reported
// as ErrDuplicate.
func TestInsertCategory(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec("INSERT INTO categories \\(user_id, name\\) VALUES \\(\\?, \\?\\)").
		WithArgs(int64(1), "Family").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectExec("INSERT INTO categories").
		WithArgs(int64(1), "family").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	category := model.Category{UserId: 1, Name: "Family"}
	require.NoError(t, s.InsertCategory(context.Background(), &category))
	assert.Equal(t, int64(4), category.Id)
	err := s.InsertCategory(context.Background(), &model.Category{UserId: 1, Name: "family"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
