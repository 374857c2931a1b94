package v1beta1

import (
	"time"
)

type Outcome string

var (
	OutcomePending   Outcome = "Pending"
	OutcomeRunning   Outcome = "Running"
	OutcomeSucceeded Outcome = "Succeeded"
	OutcomeFailed    Outcome = "Failed"
	// OutcomeErrored marks a job whose environment could not be acquired or
	// crashed outside of the step sequence.
	OutcomeErrored Outcome = "Errored"
	// OutcomeCancelled marks a job stopped by a fail-fast sibling or a skipped stage.
	OutcomeCancelled Outcome = "Cancelled"
	// OutcomeSkipped is only used for steps.
	OutcomeSkipped Outcome = "Skipped"
)

func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeErrored, OutcomeCancelled, OutcomeSkipped:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	return string(o)
}

// AxisValue is one entry of a job's axis assignment.
type AxisValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type StepResult struct {
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Outcome   Outcome   `json:"outcome"`
	ExitCode  int       `json:"exitCode"`
	Attempts  int       `json:"attempts,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (s StepResult) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}

	return s.EndedAt.Sub(s.StartedAt)
}

type JobResult struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Stage       string       `json:"stage"`
	Environment string       `json:"environment,omitempty"`
	Matrix      []AxisValue  `json:"matrix,omitempty"`
	Outcome     Outcome      `json:"outcome"`
	FailedStep  string       `json:"failedStep,omitempty"`
	StartedAt   time.Time    `json:"startedAt,omitempty"`
	EndedAt     time.Time    `json:"endedAt,omitempty"`
	Steps       []StepResult `json:"steps,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func (j JobResult) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.EndedAt.IsZero() {
		return 0
	}

	return j.EndedAt.Sub(j.StartedAt)
}

type StageResult struct {
	Name    string      `json:"name"`
	Outcome Outcome     `json:"outcome"`
	Jobs    []JobResult `json:"jobs,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s StageResult) Passed() bool {
	return s.Outcome == OutcomeSucceeded
}

type PipelineResult struct {
	Pipeline  string        `json:"pipeline,omitempty"`
	Digest    string        `json:"digest,omitempty"`
	Event     Event         `json:"event"`
	Triggered bool          `json:"triggered"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
	EndedAt   time.Time     `json:"endedAt,omitempty"`
	Stages    []StageResult `json:"stages,omitempty"`
}

func (p PipelineResult) Succeeded() bool {
	return p.Outcome == OutcomeSucceeded
}
