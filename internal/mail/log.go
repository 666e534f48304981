package mail

import (
	"context"

	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
)

// LogSender writes digests to the log instead of sending them. It is used when no SendGrid key
// is configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.With("component", "mail")}
}

func (s *LogSender) Send(_ context.Context, d Digest) error {
	rendered, err := Render(d)
	if err != nil {
		return err
	}
	s.log.Info("Digest not sent, mail delivery disabled",
		"user_id", d.UserID,
		"to", d.To,
		"subject", rendered.Subject,
		"contacts", len(d.Entries),
	)
	s.log.Debug("Digest body", "text", rendered.Text)
	return nil
}
