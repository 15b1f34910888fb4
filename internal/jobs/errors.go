package jobs

import (
	"errors"
	"fmt"
)

// StepsExceededError is returned when MaxJobs jobs ran and another is
// pending. It guards against fixtures that keep rescheduling themselves.
type StepsExceededError struct {
	Ran   int // jobs run before giving up
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("deferred queue exceeded max jobs: %d jobs ran, limit %d", e.Ran, e.Limit)
}

// IsStepsExceeded reports whether err is or wraps a StepsExceededError.
func IsStepsExceeded(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}

// JobError wraps an error returned by a job.
type JobError struct {
	Seq   int64
	Label string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s): %v", e.Seq, e.Label, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("deferred queue closed")
