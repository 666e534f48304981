package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
)

const defaultBaseURL = "https://api.sendgrid.com"

// SendGridConfig configures the SendGrid client.
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   time.Duration
	// MaxRetries is the number of additional attempts after a retryable failure.
	MaxRetries int
}

// SendGrid delivers digests through the SendGrid v3 mail send API.
type SendGrid struct {
	cfg        SendGridConfig
	httpClient *http.Client
	log        *logger.Logger
	backoff    time.Duration
}

func NewSendGrid(cfg SendGridConfig, log *logger.Logger) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing SendGrid API key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("missing SendGrid sender address")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &SendGrid{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("component", "sendgrid"),
		backoff:    time.Second,
	}, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To         []address         `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

// HTTPError is a non-2xx answer from SendGrid.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Send renders d and posts it to SendGrid, retrying on rate limiting and server errors.
func (s *SendGrid) Send(ctx context.Context, d Digest) error {
	if strings.TrimSpace(d.To) == "" {
		return errors.New("digest has no recipient")
	}
	rendered, err := Render(d)
	if err != nil {
		return err
	}
	body, err := json.Marshal(sendRequest{
		Personalizations: []personalization{{
			To:         []address{{Email: d.To, Name: d.Name}},
			CustomArgs: map[string]string{"user_id": strconv.FormatInt(d.UserID, 10)},
		}},
		From:       address{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:    rendered.Subject,
		Content:    []content{{Type: "text/plain", Value: rendered.Text}, {Type: "text/html", Value: rendered.HTML}},
		Categories: []string{"birthday-reminder"},
	})
	if err != nil {
		return err
	}

	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		retryAfter, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		if attempt >= s.cfg.MaxRetries || (errors.As(err, &httpErr) && !httpErr.retryable()) {
			return err
		}
		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		s.log.Warn("SendGrid request retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
}

func (s *SendGrid) post(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return retryAfter, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return 0, nil
}
