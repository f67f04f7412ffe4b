// Package poll drives a job to a terminal state by repeated status
// fetches with bounded attempts.
//
// Polling is the fallback channel next to the push stream: both may
// observe the same job, and terminal observations are absorbing, so a
// poll loop resolving after the stream already handled the job is a
// harmless duplicate (side effects dedupe by job id in the workflow
// layer).
package poll

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// Fetcher fetches the current status of a single job.
// *apiclient.Client satisfies this.
type Fetcher interface {
	GetJob(ctx context.Context, id string) (job.Job, error)
}

// Options configures one polling loop.
type Options struct {
	// Interval is the spacing between status fetches. Default: 2s.
	Interval time.Duration

	// MaxAttempts is the hard attempt ceiling. Exceeding it yields a
	// *TimeoutError, distinct from a task-reported failure. Default: 150.
	MaxAttempts int

	// OnStatusChange, when set, is invoked at most once per distinct
	// observed status value. Repeated identical polls do not re-notify.
	OnStatusChange func(job.Status)
}

const (
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 150
)

// UntilTerminal polls jobID until it reaches a terminal status.
//
// It resolves with the job output on success, a *TaskError when the
// task reports failure or cancellation, and a *TimeoutError after
// MaxAttempts fruitless fetches with no further request issued.
// Canceling ctx stops the loop immediately; an attempt already in
// flight is not aborted, but its result is discarded.
//
// Each call owns its attempt counter, so two callers may poll the same
// job id concurrently without corrupting each other.
func UntilTerminal(ctx context.Context, f Fetcher, jobID string, opts Options) (json.RawMessage, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastStatus job.Status
	notified := map[job.Status]bool{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		j, err := f.GetJob(ctx, jobID)
		if ctx.Err() != nil {
			// Canceled while the fetch was in flight; suppress its effect.
			return nil, ctx.Err()
		}
		if err == nil {
			if opts.OnStatusChange != nil && !notified[j.Status] {
				opts.OnStatusChange(j.Status)
				notified[j.Status] = true
			}
			lastStatus = j.Status

			switch j.Status {
			case job.StatusSucceeded:
				return j.Output, nil
			case job.StatusFailed:
				return nil, &TaskError{JobID: jobID, Message: failureMessage(j.Error)}
			case job.StatusCanceled:
				return nil, &TaskError{JobID: jobID, Message: "task was canceled", Canceled: true}
			}
		}
		// Fetch errors count as fruitless attempts; transient backend
		// hiccups should not end the loop early.

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, &TimeoutError{JobID: jobID, Attempts: maxAttempts, LastStatus: lastStatus}
}
