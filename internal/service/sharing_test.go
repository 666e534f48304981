package service

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

// TestSharedBirthdays executes a GET request for a public birthday page without a user header.
// It expects the active contacts ordered by month and day, with their category names.
func TestSharedBirthdays(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	expectPreparedStatements(mock)
	mock.ExpectQuery("SELECT \\* FROM users WHERE share_token = \\? AND share_enabled = TRUE").
		WithArgs("abc123").
		WillReturnRows(mock.NewRows(accountColumns).
			AddRow(int64(1), "Dirk", "dirk@example.com", "free", nil, nil, nil, "abc123", true, created))
	rows := mock.NewRows(contactColumns)
	addContactRow(rows, 1, "December", time.Date(1980, time.December, 24, 0, 0, 0, 0, time.UTC), false)
	rows.AddRow(int64(2), int64(1), int64(9), "March", nil, nil, time.Date(1990, time.March, 15, 0, 0, 0, 0, time.UTC),
		true, true, false, nil, nil, created, created)
	rows.AddRow(int64(3), int64(1), nil, "Early March", nil, nil, time.Date(2000, time.March, 2, 0, 0, 0, 0, time.UTC),
		false, true, false, nil, nil, created, created)
	mock.ExpectQuery("SELECT \\* FROM contacts WHERE user_id = \\? AND status = TRUE AND is_locked = FALSE").
		WithArgs(int64(1)).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT \\* FROM categories WHERE user_id").
		WithArgs(int64(1)).
		WillReturnRows(mock.NewRows(categoryColumns).AddRow(int64(9), int64(1), "Family", created, created))

	recorder := runRequest(t, db, newRequest("GET", "/birthdays/abc123", nil, nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	var page pkgmodel.BirthdayPage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &page))
	assert.Equal(t, "Dirk", page.Name)
	require.Len(t, page.Birthdays, 3)
	assert.Equal(t, "Early March", page.Birthdays[0].Name)
	assert.Equal(t, "--03-02", page.Birthdays[0].Birthday)
	assert.Equal(t, "March", page.Birthdays[1].Name)
	assert.Equal(t, "Family", *page.Birthdays[1].Category)
	assert.Equal(t, "December", page.Birthdays[2].Name)
	assert.Nil(t, page.Birthdays[2].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSharedBirthdaysNotFound expects 404 for unknown tokens and for pages whose owner turned
// sharing off.
func TestSharedBirthdaysNotFound(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	expectPreparedStatements(mock)
	mock.ExpectQuery("SELECT \\* FROM users WHERE share_token = \\? AND share_enabled = TRUE").
		WithArgs("disabled").
		WillReturnRows(mock.NewRows(accountColumns))

	recorder := runRequest(t, db, newRequest("GET", "/birthdays/disabled", nil, nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "birthday page not found or sharing is disabled", message(t, recorder))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestToggleSharing turns sharing on for a user without a token. It expects a 32 character token
// to be generated and the page path to be returned.
func TestToggleSharing(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	expectPreparedStatements(mock)
	expectAccountLock(mock, "free", nil, nil, nil, false)
	mock.ExpectExec("UPDATE users SET share_enabled = \\?, share_token = \\? WHERE id = \\?").
		WithArgs(true, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(-1, 1))
	mock.ExpectCommit()

	recorder := runTest(t, db, "POST", "/sharing", strings.NewReader(`{"enabled": true}`))
	assert.Equal(t, http.StatusOK, recorder.Code)
	var sharing pkgmodel.Sharing
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &sharing))
	assert.True(t, sharing.Enabled)
	token, ok := strings.CutPrefix(sharing.Path, "/birthdays/")
	require.True(t, ok, sharing.Path)
	assert.Len(t, token, 32)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestToggleSharingOffKeepsToken expects turning sharing off to keep the existing token.
func TestToggleSharingOffKeepsToken(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	expectPreparedStatements(mock)
	expectAccountLock(mock, "free", nil, nil, "abc123", true)
	mock.ExpectExec("UPDATE users SET share_enabled = \\?, share_token = \\? WHERE id = \\?").
		WithArgs(false, "abc123", int64(1)).
		WillReturnResult(sqlmock.NewResult(-1, 1))
	mock.ExpectCommit()

	recorder := runTest(t, db, "POST", "/sharing", strings.NewReader(`{"enabled": false}`))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"enabled": false`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestToggleSharingInvalid expects a body without the enabled flag to be rejected without SQL.
func TestToggleSharingInvalid(t *testing.T) {
	for _, body := range []string{"", "{}", `{"enabled": "yes"}`} {
		db, mock := createMockObjects(t)
		expectPreparedStatements(mock)
		recorder := runTest(t, db, "POST", "/sharing", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, recorder.Code, "request body: "+body)
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

// TestRegenerateShareToken expects a new token that replaces the old one.
func TestRegenerateShareToken(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	expectPreparedStatements(mock)
	expectAccountLock(mock, "free", nil, nil, "abc123", true)
	mock.ExpectExec("UPDATE users SET share_enabled = \\?, share_token = \\? WHERE id = \\?").
		WithArgs(true, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(-1, 1))
	mock.ExpectCommit()

	recorder := runTest(t, db, "POST", "/sharing/regenerate", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	var sharing pkgmodel.Sharing
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &sharing))
	assert.True(t, sharing.Enabled)
	assert.NotEqual(t, "/birthdays/abc123", sharing.Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}
