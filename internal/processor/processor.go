package processor

import (
	"context"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// JobInfo identifies the job a step chain is bootstrapped for.
type JobInfo struct {
	ID          string
	Name        string
	Stage       string
	Environment string
}

type Next func(ctx context.Context, stepContext StepContext) (StepContext, error)

type Bootstraper interface {
	Bootstrap(job JobInfo, next Next) (Next, error)
}

// ProcessorBuilder returns nil if the processor does not apply to spec.
type ProcessorBuilder func(spec *v1beta1.Step) Bootstraper

func Builder(spec *v1beta1.Step, builders ...ProcessorBuilder) []Bootstraper {
	var result []Bootstraper
	for _, builder := range builders {
		processor := builder(spec)
		if processor != nil {
			result = append(result, processor)
		}
	}

	return result
}

// Chain bootstraps the processors in order, the first processor is the outermost.
func Chain(job JobInfo, s ...Bootstraper) (Next, error) {
	if len(s) == 0 {
		return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
			return stepContext, nil
		}, nil
	}

	next, err := Chain(job, s[1:]...)
	if err != nil {
		return nil, err
	}

	return s[0].Bootstrap(job, next)
}
