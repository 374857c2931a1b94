package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithResult() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		return &Result{
			stepName: spec.Name,
		}
	}
}

// Result records the step result within the step context.
type Result struct {
	stepName string
}

func (s *Result) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		result := &v1beta1.StepResult{
			Name:      s.stepName,
			Index:     stepContext.Index,
			Outcome:   v1beta1.OutcomeRunning,
			StartedAt: time.Now(),
		}

		stepContext.Result = result
		if stepContext.Steps != nil {
			stepContext.Steps[s.stepName] = result
		}

		stepContext, nextErr := next(ctx, stepContext)
		result.EndedAt = time.Now()
		result.Outcome = Outcome(nextErr)
		stepContext.Result = result

		if nextErr != nil {
			result.Error = nextErr.Error()
		}

		if AbortOnError(nextErr) {
			nextErr = fmt.Errorf("step `%s` failed: %w", s.stepName, nextErr)
		}

		return stepContext, nextErr
	}, nil
}
