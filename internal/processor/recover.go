package processor

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// PanicError is returned for a step which panicked. It is classified as Errored
// since the failure is not caused by the validated source.
type PanicError struct {
	JobID string
	Step  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in step `%s` of job %s: %v", e.Step, e.JobID, e.Value)
}

func WithRecover() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		return &Recover{
			stepName: spec.Name,
		}
	}
}

type Recover struct {
	stepName string
}

func (s *Recover) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (out StepContext, err error) {
		out = stepContext
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			panicErr := &PanicError{
				JobID: job.ID,
				Step:  s.stepName,
				Value: r,
				Stack: debug.Stack(),
			}

			logr.FromContextOrDiscard(ctx).Error(panicErr, "recovered from panic", "stack", string(panicErr.Stack))
			err = panicErr
		}()

		return next(ctx, stepContext)
	}, nil
}
