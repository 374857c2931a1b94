package processor

import (
	"io"
	"maps"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

type StepContext struct {
	Index  int
	Env    map[string]string
	Matrix map[string]string
	Event  map[string]any
	Job    map[string]any
	// Steps holds the results of the steps executed so far within the job.
	Steps  map[string]*v1beta1.StepResult
	Result *v1beta1.StepResult
	Stdout io.Writer
	Stderr io.Writer
}

func NewContext() StepContext {
	return StepContext{
		Env:    make(map[string]string),
		Matrix: make(map[string]string),
		Event:  make(map[string]any),
		Job:    make(map[string]any),
		Steps:  make(map[string]*v1beta1.StepResult),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
}

// Child returns a context for the next step. Steps are shared, env is copied.
func (c StepContext) Child(index int, env map[string]string) StepContext {
	child := c
	child.Index = index
	child.Result = nil
	child.Env = maps.Clone(c.Env)
	if child.Env == nil {
		child.Env = make(map[string]string)
	}

	maps.Copy(child.Env, env)
	return child
}

// RuntimeVars returns the variables available to step conditions.
func (c StepContext) RuntimeVars() map[string]any {
	steps := make(map[string]any, len(c.Steps))
	for name, result := range c.Steps {
		steps[name] = map[string]any{
			"outcome":  result.Outcome.String(),
			"exitCode": result.ExitCode,
		}
	}

	return map[string]any{
		"event":  c.Event,
		"matrix": c.Matrix,
		"job":    c.Job,
		"steps":  steps,
		"env":    c.Env,
	}
}
