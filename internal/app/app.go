// Package app assembles the components shared by the service and worker binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/config"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/mail"
	"gitlab.com/dirk.krummacker/birthday-service/internal/notify"
	"gitlab.com/dirk.krummacker/birthday-service/internal/reminder"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// OpenStore connects to MySQL and prepares the store. The returned handle must be closed by the
// caller.
func OpenStore(cfg config.Config) (*store.Store, *sql.DB, error) {
	sqlDB, err := store.CreateDatabase(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return st, sqlDB, nil
}

// Clock returns the system clock for the configured time zone. An unknown zone is logged and
// replaced by UTC.
func Clock(cfg config.Config, log *logger.Logger) clock.System {
	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		log.Warn("Unknown time zone, using UTC", "timezone", cfg.Timezone, "error", err)
	}
	return clk
}

// Sender returns the SendGrid sender when an API key is configured and a sender that only logs
// the digests otherwise.
func Sender(cfg config.Config, log *logger.Logger) (mail.Sender, error) {
	if cfg.SendGridAPIKey == "" {
		log.Warn("No SendGrid API key configured, reminder mails are only logged")
		return mail.NewLogSender(log), nil
	}
	return mail.NewSendGrid(mail.SendGridConfig{
		APIKey:     cfg.SendGridAPIKey,
		BaseURL:    cfg.SendGridBaseURL,
		FromEmail:  cfg.SendGridFromEmail,
		FromName:   cfg.SendGridFromName,
		Timeout:    cfg.MailTimeout,
		MaxRetries: 2,
	}, log)
}

// ReminderJob builds the reminder batch. Sent-markers live in Redis when REDIS_URL is set and
// in memory otherwise. The returned function releases the Redis connection.
func ReminderJob(ctx context.Context, cfg config.Config, st *store.Store, clk clock.Clock, log *logger.Logger) (*reminder.Job, func(), error) {
	sender, err := Sender(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("configure mail: %w", err)
	}
	var marker reminder.Marker
	closer := func() {}
	if cfg.RedisURL == "" {
		log.Warn("No Redis configured, reminder markers are kept in memory")
		marker = reminder.NewMemoryMarker()
	} else {
		redisMarker, err := reminder.NewRedisMarkerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		marker = redisMarker
		closer = func() { _ = redisMarker.Close() }
	}
	job := reminder.NewJob(st, sender, notify.NewSink(st, log), marker, clk, reminder.Options{
		SendTimeout: cfg.MailTimeout,
		Concurrency: cfg.MailConcurrency,
	}, log)
	return job, closer, nil
}
