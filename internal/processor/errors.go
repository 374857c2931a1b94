package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var (
	ErrConditionFalse = errors.New("conditional step skipped")
	ErrAllowFailure   = errors.New("ignore error returned from step")
	ErrTimeout        = errors.New("operation timed out")
)

// StepError is returned if a step exited with a non zero exit code.
type StepError struct {
	JobID    string
	Step     string
	Index    int
	ExitCode int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step `%s` (#%d) of job %s exited with code %d", e.Step, e.Index, e.JobID, e.ExitCode)
}

// AbortOnError reports whether err stops the remaining steps of a job.
func AbortOnError(err error) bool {
	switch {
	case errors.Is(err, ErrAllowFailure):
		return false
	case errors.Is(err, ErrConditionFalse):
		return false
	case err != nil:
		return true
	default:
		return false
	}
}

// Outcome classifies a step error.
func Outcome(err error) v1beta1.Outcome {
	var stepErr *StepError

	switch {
	case err == nil:
		return v1beta1.OutcomeSucceeded
	case errors.Is(err, ErrConditionFalse):
		return v1beta1.OutcomeSkipped
	case errors.Is(err, ErrAllowFailure):
		return v1beta1.OutcomeFailed
	case errors.As(err, &stepErr):
		return v1beta1.OutcomeFailed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return v1beta1.OutcomeFailed
	case errors.Is(err, context.Canceled):
		return v1beta1.OutcomeCancelled
	default:
		return v1beta1.OutcomeErrored
	}
}
