package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithTimeout() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.Timeout.Duration == 0 {
			return nil
		}

		return &Timeout{
			timeout: spec.Timeout.Duration,
		}
	}
}

type Timeout struct {
	timeout time.Duration
}

func (s *Timeout) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		timeoutCtx, cancel := context.WithTimeoutCause(ctx, s.timeout, ErrTimeout)
		defer cancel()

		stepContext, err := next(timeoutCtx, stepContext)
		if err != nil && ctx.Err() == nil && errors.Is(context.Cause(timeoutCtx), ErrTimeout) {
			return stepContext, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
		}

		return stepContext, err
	}, nil
}
