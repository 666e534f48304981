// Package worker runs the reminder batch as an asynq task that an asynq scheduler enqueues once
// per day.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

const (
	// TaskRunReminders runs the reminder batch for the current day.
	TaskRunReminders = "reminders:run"

	runTimeout = 30 * time.Minute
)

// Runner is the reminder batch.
type Runner interface {
	Run(ctx context.Context) (pkgmodel.ReminderRun, error)
}

// NewRunRemindersTask builds the task the scheduler enqueues. Unique keeps a second scheduler
// instance from enqueueing the same run.
func NewRunRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskRunReminders, nil,
		asynq.MaxRetry(3),
		asynq.Timeout(runTimeout),
		asynq.Retention(24*time.Hour),
		asynq.Unique(23*time.Hour),
	)
}

// Server processes reminder tasks.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *logger.Logger
}

// NewServer connects to the Redis server at redisURL.
func NewServer(redisURL string, runner Runner, log *logger.Logger) (*Server, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	log = log.With("component", "worker")
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     1,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler:    asynq.ErrorHandlerFunc(errorHandler(log)),
		Logger:          &asynqLogger{log: log},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRunReminders, HandleRunReminders(runner, log))
	return &Server{srv: srv, mux: mux, log: log}, nil
}

// Run blocks until the process receives a termination signal.
func (s *Server) Run() error {
	s.log.Info("Worker starting")
	return s.srv.Run(s.mux)
}

// HandleRunReminders returns the asynq handler of TaskRunReminders. Per-user delivery failures
// are part of the report and do not fail the task; sent-markers make a retry resend only what
// is missing.
func HandleRunReminders(runner Runner, log *logger.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		result, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("reminder run: %w", err)
		}
		if len(result.Failures) > 0 {
			log.Warn("Reminder run finished with failures", "date", result.Date, "failures", result.Failures)
		}
		if w := task.ResultWriter(); w != nil {
			if raw, err := json.Marshal(result); err == nil {
				_, _ = w.Write(raw)
			}
		}
		return nil
	}
}

func errorHandler(log *logger.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		log.Error("Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)
	}
}

// asynqLogger routes asynq's own log output to our logger.
type asynqLogger struct {
	log *logger.Logger
}

func (a *asynqLogger) Debug(args ...interface{}) {
	a.log.Debug(fmt.Sprint(args...))
}

func (a *asynqLogger) Info(args ...interface{}) {
	a.log.Info(fmt.Sprint(args...))
}

func (a *asynqLogger) Warn(args ...interface{}) {
	a.log.Warn(fmt.Sprint(args...))
}

func (a *asynqLogger) Error(args ...interface{}) {
	a.log.Error(fmt.Sprint(args...))
}

func (a *asynqLogger) Fatal(args ...interface{}) {
	a.log.Fatal(fmt.Sprint(args...))
}
