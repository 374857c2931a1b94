package executor

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned for jobs which have been stopped by a fail fast sibling.
var ErrInterrupted = errors.New("job interrupted")

// InfrastructureError is returned if the runtime could not provide or lost the
// execution environment of a job.
type InfrastructureError struct {
	JobID    string
	Selector string
	Err      error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("job %s: environment `%s`: %s", e.JobID, e.Selector, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
