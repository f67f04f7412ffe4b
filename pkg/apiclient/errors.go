package apiclient

import (
	"errors"
	"fmt"
)

// SubmissionError indicates job creation failed at the transport or
// validation layer. It is surfaced to the workflow layer immediately;
// this subsystem performs no retry.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("job submission failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("job submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusError is a non-success response from any other endpoint.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend request failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NotFoundError indicates the backend does not know the requested
// resource, either a job or a chapter.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// IsSubmissionFailed reports whether err is a job submission failure.
func IsSubmissionFailed(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is a not-found response.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
