package processor

import (
	"context"
	"errors"

	"github.com/raffis/rigor/internal/mask"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithMask(store *mask.SecretStore) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if store == nil || store.Len() == 0 {
			return nil
		}

		return &Mask{
			store: store,
		}
	}
}

// Mask replaces secret values in the step output.
type Mask struct {
	store *mask.SecretStore
}

func (s *Mask) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		stdout, stderr := s.store.Writer(stepContext.Stdout), s.store.Writer(stepContext.Stderr)
		origStdout, origStderr := stepContext.Stdout, stepContext.Stderr
		stepContext.Stdout, stepContext.Stderr = stdout, stderr

		stepContext, err := next(ctx, stepContext)
		stepContext.Stdout, stepContext.Stderr = origStdout, origStderr

		if flushErr := errors.Join(stdout.Flush(), stderr.Flush()); flushErr != nil && err == nil {
			err = flushErr
		}

		return stepContext, err
	}, nil
}
