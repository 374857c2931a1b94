package processor

import (
	"context"
	"fmt"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithAllowFailure() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if !spec.ContinueOnError {
			return nil
		}

		return &AllowFailure{}
	}
}

// AllowFailure lets the job continue after a failed step.
// Infrastructure errors are not affected.
type AllowFailure struct {
}

func (s *AllowFailure) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		stepContext, err := next(ctx, stepContext)

		if err != nil && Outcome(err) == v1beta1.OutcomeFailed {
			err = fmt.Errorf("%w: %w", ErrAllowFailure, err)
		}

		return stepContext, err
	}, nil
}
