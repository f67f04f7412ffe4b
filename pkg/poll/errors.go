package poll

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// FallbackFailureMessage is the user-facing message when a failed task
// reported no reason of its own.
const FallbackFailureMessage = "task failed without a reported reason"

func failureMessage(reported string) string {
	if msg := strings.TrimSpace(reported); msg != "" {
		return msg
	}
	return FallbackFailureMessage
}

// TimeoutError indicates the attempt ceiling was exhausted before the
// job reached a terminal status.
type TimeoutError struct {
	JobID      string
	Attempts   int
	LastStatus job.Status
}

func (e *TimeoutError) Error() string {
	if e.LastStatus != "" {
		return fmt.Sprintf("job %s still %s after %d polls", e.JobID, e.LastStatus, e.Attempts)
	}
	return fmt.Sprintf("job %s not terminal after %d polls", e.JobID, e.Attempts)
}

// TaskError indicates the task executor itself reported failure or
// cancellation. The message is suitable for direct display.
type TaskError struct {
	JobID    string
	Message  string
	Canceled bool
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("job %s: %s", e.JobID, e.Message)
}

// IsTimeout reports whether err is a poll attempt-ceiling timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsTaskFailed reports whether err is a task-reported failure.
func IsTaskFailed(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}
