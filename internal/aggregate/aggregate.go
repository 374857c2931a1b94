package aggregate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// ErrPipelineFailed is wrapped by AggregateError.
var ErrPipelineFailed = errors.New("pipeline failed")

// JobError describes one job which did not succeed.
type JobError struct {
	Stage      string
	Job        string
	Outcome    v1beta1.Outcome
	FailedStep string
	Message    string
}

func (e *JobError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage `%s`: job `%s` %s", e.Stage, e.Job, strings.ToLower(e.Outcome.String()))
	if e.FailedStep != "" {
		fmt.Fprintf(&b, " at step `%s`", e.FailedStep)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	return b.String()
}

// AggregateError itemizes every job of a pipeline run which did not succeed.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("%s:\n  %s", ErrPipelineFailed, strings.Join(msgs, "\n  "))
}

func (e *AggregateError) Unwrap() []error {
	return append([]error{ErrPipelineFailed}, e.Errs...)
}

// StageOutcome is Succeeded iff every job succeeded. Otherwise the most severe
// job outcome wins: Failed, Errored, Cancelled.
func StageOutcome(jobs []v1beta1.JobResult) v1beta1.Outcome {
	outcomes := make([]v1beta1.Outcome, 0, len(jobs))
	for _, job := range jobs {
		outcomes = append(outcomes, job.Outcome)
	}

	return combine(outcomes)
}

// Stage builds the result of a stage from its job results.
func Stage(name string, jobs []v1beta1.JobResult) v1beta1.StageResult {
	return v1beta1.StageResult{
		Name:    name,
		Outcome: StageOutcome(jobs),
		Jobs:    jobs,
	}
}

// Aggregate folds the stage results of a run into the pipeline result.
// The pipeline passes iff every stage passed. Stage results keep their order.
func Aggregate(stages []v1beta1.StageResult) v1beta1.PipelineResult {
	result := v1beta1.PipelineResult{
		Triggered: true,
		Stages:    stages,
	}

	outcomes := make([]v1beta1.Outcome, 0, len(stages))
	for _, stage := range stages {
		outcomes = append(outcomes, stage.Outcome)

		for _, job := range stage.Jobs {
			if !job.StartedAt.IsZero() && (result.StartedAt.IsZero() || job.StartedAt.Before(result.StartedAt)) {
				result.StartedAt = job.StartedAt
			}

			if job.EndedAt.After(result.EndedAt) {
				result.EndedAt = job.EndedAt
			}
		}
	}

	result.Outcome = combine(outcomes)
	if result.StartedAt.IsZero() {
		result.StartedAt = time.Now()
		result.EndedAt = result.StartedAt
	}

	return result
}

// Err returns nil if the pipeline succeeded, otherwise an *AggregateError.
func Err(result v1beta1.PipelineResult) error {
	if result.Succeeded() {
		return nil
	}

	aggregateErr := &AggregateError{}
	for _, stage := range result.Stages {
		if stage.Passed() {
			continue
		}

		if len(stage.Jobs) == 0 {
			aggregateErr.Errs = append(aggregateErr.Errs, &JobError{
				Stage:   stage.Name,
				Outcome: stage.Outcome,
				Message: stage.Error,
			})
		}

		for _, job := range stage.Jobs {
			if job.Outcome == v1beta1.OutcomeSucceeded {
				continue
			}

			aggregateErr.Errs = append(aggregateErr.Errs, &JobError{
				Stage:      stage.Name,
				Job:        job.Name,
				Outcome:    job.Outcome,
				FailedStep: job.FailedStep,
				Message:    job.Error,
			})
		}
	}

	return aggregateErr
}

var severity = map[v1beta1.Outcome]int{
	v1beta1.OutcomeSucceeded: 0,
	v1beta1.OutcomeCancelled: 1,
	v1beta1.OutcomeErrored:   2,
	v1beta1.OutcomeFailed:    3,
}

func combine(outcomes []v1beta1.Outcome) v1beta1.Outcome {
	result := v1beta1.OutcomeSucceeded
	for _, outcome := range outcomes {
		s, ok := severity[outcome]
		if !ok {
			// Non terminal outcomes never pass.
			s = severity[v1beta1.OutcomeErrored]
			outcome = v1beta1.OutcomeErrored
		}

		if s > severity[result] {
			result = outcome
		}
	}

	return result
}
