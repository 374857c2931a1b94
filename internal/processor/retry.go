package processor

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithRetry() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.Retry == nil {
			return nil
		}

		return &Retry{
			max:         uint64(spec.Retry.MaxRetries),
			exponential: spec.Retry.Exponential.Duration,
			constant:    spec.Retry.Constant.Duration,
		}
	}
}

const defaultMaxRetries = 3

// Retry re-runs a failed step. Only step failures are retried.
type Retry struct {
	max         uint64
	exponential time.Duration
	constant    time.Duration
}

func (s *Retry) backoff() retry.Backoff {
	var backoff retry.Backoff
	switch {
	case s.exponential != 0:
		backoff = retry.NewExponential(s.exponential)
	case s.constant != 0:
		backoff = retry.NewConstant(s.constant)
	default:
		backoff = retry.NewConstant(time.Second)
	}

	maxRetries := s.max
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return retry.WithMaxRetries(maxRetries, backoff)
}

func (s *Retry) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		var err error
		backoff := s.backoff()

		if retryErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
			stepContext, err = next(ctx, stepContext)
			if err != nil && Outcome(err) == v1beta1.OutcomeFailed {
				return retry.RetryableError(err)
			}

			return err
		}); retryErr != nil && err == nil {
			err = retryErr
		}

		return stepContext, err
	}, nil
}
