package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

type fakeRunner struct {
	result pkgmodel.ReminderRun
	err    error
	calls  int
}

func (f *fakeRunner) Run(context.Context) (pkgmodel.ReminderRun, error) {
	f.calls++
	return f.result, f.err
}

// TestHandleRunReminders expects per-user failures not to fail the task.
func TestHandleRunReminders(t *testing.T) {
	runner := &fakeRunner{result: pkgmodel.ReminderRun{Date: "2024-05-15", Sent: 1, Failures: []string{"user 3: timeout"}}}
	err := HandleRunReminders(runner, logger.Nop())(context.Background(), NewRunRemindersTask())
	assert.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
}

// TestHandleRunRemindersError expects a failed run to be retried.
func TestHandleRunRemindersError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("db down")}
	err := HandleRunReminders(runner, logger.Nop())(context.Background(), asynq.NewTask(TaskRunReminders, nil))
	assert.ErrorContains(t, err, "db down")
}

// TestNewRunRemindersTask checks the task type.
func TestNewRunRemindersTask(t *testing.T) {
	assert.Equal(t, TaskRunReminders, NewRunRemindersTask().Type())
}

// TestNewServerInvalidURL expects a parse error.
func TestNewServerInvalidURL(t *testing.T) {
	_, err := NewServer("not a url", &fakeRunner{}, logger.Nop())
	assert.Error(t, err)
}
