package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
)

func digest() Digest {
	age := 34
	return Digest{
		UserID: 7,
		To:     "dirk@example.com",
		Name:   "Dirk",
		Today:  time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC),
		Entries: []Entry{
			{Name: "Anna <script>", Date: "May 15, 1990", Age: &age},
			{Name: "Ben", Date: "May 15"},
		},
	}
}

// TestRender checks that every contact appears and that names are escaped in HTML.
func TestRender(t *testing.T) {
	r, err := Render(digest())
	require.NoError(t, err)
	assert.Equal(t, "Birthday Reminder", r.Subject)
	assert.Contains(t, r.HTML, "Hello Dirk,")
	assert.Contains(t, r.HTML, "May 15, 2024")
	assert.Contains(t, r.HTML, "Anna &lt;script&gt;")
	assert.Contains(t, r.HTML, "<td>34</td>")
	assert.Contains(t, r.Text, "- Anna <script> (May 15, 1990), turning 34")
	assert.Contains(t, r.Text, "- Ben (May 15)\n")
}

// TestRenderWithoutName expects a generic greeting.
func TestRenderWithoutName(t *testing.T) {
	d := digest()
	d.Name = ""
	r, err := Render(d)
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Hello there,")
}

func newSendGrid(t *testing.T, url string) *SendGrid {
	s, err := NewSendGrid(SendGridConfig{APIKey: "key", BaseURL: url, FromEmail: "noreply@example.com", MaxRetries: 2}, logger.Nop())
	require.NoError(t, err)
	s.backoff = time.Millisecond
	return s
}

// TestSendGridSend expects a well formed request.
func TestSendGridSend(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	require.NoError(t, newSendGrid(t, server.URL).Send(context.Background(), digest()))
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "dirk@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "7", got.Personalizations[0].CustomArgs["user_id"])
	assert.Equal(t, "noreply@example.com", got.From.Email)
	assert.Equal(t, Subject, got.Subject)
	assert.Len(t, got.Content, 2)
}

// TestSendGridRetries expects server errors to be retried.
func TestSendGridRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	require.NoError(t, newSendGrid(t, server.URL).Send(context.Background(), digest()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestSendGridClientError expects a 4xx answer to fail at once.
func TestSendGridClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad"}]}`))
	}))
	defer server.Close()

	err := newSendGrid(t, server.URL).Send(context.Background(), digest())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestNewSendGridRequiresKey expects configuration errors.
func TestNewSendGridRequiresKey(t *testing.T) {
	_, err := NewSendGrid(SendGridConfig{FromEmail: "a@example.com"}, logger.Nop())
	assert.Error(t, err)
	_, err = NewSendGrid(SendGridConfig{APIKey: "k"}, logger.Nop())
	assert.Error(t, err)
}
