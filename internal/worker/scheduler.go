package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
)

// StartScheduler registers the daily reminder task on the cron spec schedule, evaluated in
// location, and starts the scheduler. The returned function stops it.
func StartScheduler(redisURL, schedule string, location *time.Location, log *logger.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if location == nil {
		location = time.UTC
	}
	log = log.With("component", "scheduler")
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: location,
		LogLevel: asynq.InfoLevel,
		Logger:   &asynqLogger{log: log},
	})
	entryID, err := scheduler.Register(schedule, NewRunRemindersTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register reminder schedule: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("Scheduler started", "schedule", schedule, "timezone", location.String(), "entry_id", entryID)
	return scheduler.Shutdown, nil
}
