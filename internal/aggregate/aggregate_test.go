package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func job(name string, outcome v1beta1.Outcome) v1beta1.JobResult {
	return v1beta1.JobResult{Name: name, Outcome: outcome}
}

func TestStageOutcome(t *testing.T) {
	tests := []struct {
		name     string
		jobs     []v1beta1.JobResult
		expected v1beta1.Outcome
	}{
		{
			name:     "all succeeded",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeSucceeded), job("b", v1beta1.OutcomeSucceeded)},
			expected: v1beta1.OutcomeSucceeded,
		},
		{
			name:     "one failed",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeSucceeded), job("b", v1beta1.OutcomeFailed)},
			expected: v1beta1.OutcomeFailed,
		},
		{
			name:     "failed wins over cancelled",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeCancelled), job("b", v1beta1.OutcomeFailed)},
			expected: v1beta1.OutcomeFailed,
		},
		{
			name:     "errored only",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeErrored), job("b", v1beta1.OutcomeSucceeded)},
			expected: v1beta1.OutcomeErrored,
		},
		{
			name:     "cancelled only",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeCancelled)},
			expected: v1beta1.OutcomeCancelled,
		},
		{
			name:     "running job never passes",
			jobs:     []v1beta1.JobResult{job("a", v1beta1.OutcomeRunning)},
			expected: v1beta1.OutcomeErrored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StageOutcome(tt.jobs))
		})
	}
}

// Scenario A: all jobs of all stages pass.
func TestAggregateAllPassed(t *testing.T) {
	result := Aggregate([]v1beta1.StageResult{
		Stage("check", []v1beta1.JobResult{job("check (ubuntu-latest)", v1beta1.OutcomeSucceeded), job("check (windows-latest)", v1beta1.OutcomeSucceeded), job("check (macOS-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("test", []v1beta1.JobResult{job("test (ubuntu-latest)", v1beta1.OutcomeSucceeded), job("test (windows-latest)", v1beta1.OutcomeSucceeded), job("test (macOS-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("lints", []v1beta1.JobResult{job("lints", v1beta1.OutcomeSucceeded)}),
	})

	assert.True(t, result.Succeeded())
	assert.NoError(t, Err(result))
}

// Scenario B: one test job fails without fail-fast.
func TestAggregateOneJobFailed(t *testing.T) {
	failed := job("test (windows-latest)", v1beta1.OutcomeFailed)
	failed.FailedStep = "test"
	failed.Error = "exited with code 101"

	result := Aggregate([]v1beta1.StageResult{
		Stage("check", []v1beta1.JobResult{job("check (ubuntu-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("test", []v1beta1.JobResult{job("test (ubuntu-latest)", v1beta1.OutcomeSucceeded), failed, job("test (macOS-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("lints", []v1beta1.JobResult{job("lints", v1beta1.OutcomeSucceeded)}),
	})

	assert.False(t, result.Succeeded())
	assert.Equal(t, v1beta1.OutcomeFailed, result.Outcome)
	assert.True(t, result.Stages[0].Passed())
	assert.False(t, result.Stages[1].Passed())
	assert.True(t, result.Stages[2].Passed())

	err := Err(result)
	require.ErrorIs(t, err, ErrPipelineFailed)

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "test", jobErr.Stage)
	assert.Equal(t, "test (windows-latest)", jobErr.Job)
	assert.Equal(t, "stage `test`: job `test (windows-latest)` failed at step `test`: exited with code 101", jobErr.Error())
	assert.Contains(t, err.Error(), "pipeline failed:\n  stage `test`")
}

// Scenario C: lints fail while every other stage passes.
func TestAggregateLintsFailed(t *testing.T) {
	result := Aggregate([]v1beta1.StageResult{
		Stage("check", []v1beta1.JobResult{job("check (ubuntu-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("test", []v1beta1.JobResult{job("test (ubuntu-latest)", v1beta1.OutcomeSucceeded)}),
		Stage("lints", []v1beta1.JobResult{job("lints", v1beta1.OutcomeFailed)}),
	})

	assert.False(t, result.Succeeded())
	aggregateErr, ok := Err(result).(*AggregateError)
	require.True(t, ok)
	assert.Len(t, aggregateErr.Errs, 1)
}

func TestAggregateStageWithoutJobs(t *testing.T) {
	result := Aggregate([]v1beta1.StageResult{
		{Name: "test", Outcome: v1beta1.OutcomeCancelled, Error: "dependency `check` did not pass"},
	})

	assert.Equal(t, v1beta1.OutcomeCancelled, result.Outcome)
	assert.ErrorContains(t, Err(result), "dependency `check` did not pass")
}

func TestAggregateEmpty(t *testing.T) {
	result := Aggregate(nil)
	assert.True(t, result.Succeeded())
	assert.False(t, result.StartedAt.IsZero())
}

func TestAggregateTimes(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a := job("a", v1beta1.OutcomeSucceeded)
	a.StartedAt, a.EndedAt = start.Add(time.Second), start.Add(5*time.Second)
	b := job("b", v1beta1.OutcomeSucceeded)
	b.StartedAt, b.EndedAt = start, start.Add(3*time.Second)

	result := Aggregate([]v1beta1.StageResult{Stage("x", []v1beta1.JobResult{a}), Stage("y", []v1beta1.JobResult{b})})
	assert.Equal(t, start, result.StartedAt)
	assert.Equal(t, start.Add(5*time.Second), result.EndedAt)
}

// Turning any succeeded job into a non succeeded one never makes a failed pipeline pass
// and always makes a passing pipeline fail.
func TestAggregateMonotonic(t *testing.T) {
	outcomes := []v1beta1.Outcome{
		v1beta1.OutcomeSucceeded,
		v1beta1.OutcomeFailed,
		v1beta1.OutcomeErrored,
		v1beta1.OutcomeCancelled,
	}

	// All assignments of 3 jobs over 2 stages.
	for _, a := range outcomes {
		for _, b := range outcomes {
			for _, c := range outcomes {
				jobs := []v1beta1.Outcome{a, b, c}
				base := aggregateOutcomes(jobs)

				for i := range jobs {
					if jobs[i] != v1beta1.OutcomeSucceeded {
						continue
					}

					for _, worse := range outcomes[1:] {
						changed := append([]v1beta1.Outcome(nil), jobs...)
						changed[i] = worse
						result := aggregateOutcomes(changed)

						assert.False(t, result.Succeeded(), "%v -> %v", jobs, changed)
						if !base.Succeeded() {
							assert.False(t, result.Succeeded())
						}
					}
				}
			}
		}
	}
}

func aggregateOutcomes(outcomes []v1beta1.Outcome) v1beta1.PipelineResult {
	return Aggregate([]v1beta1.StageResult{
		Stage("first", []v1beta1.JobResult{job("a", outcomes[0]), job("b", outcomes[1])}),
		Stage("second", []v1beta1.JobResult{job("c", outcomes[2])}),
	})
}
