package processor

import (
	"context"

	"github.com/google/cel-go/cel"

	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithIf(celEnv *cel.Env) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.If == "" {
			return nil
		}

		return &If{
			condition: spec.If,
			celEnv:    celEnv,
		}
	}
}

type If struct {
	condition string
	celEnv    *cel.Env
}

func (s *If) Bootstrap(job JobInfo, next Next) (Next, error) {
	prg, err := expression.Compile(s.celEnv, s.condition)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		ok, err := expression.EvalBool(prg, stepContext.RuntimeVars())
		if err != nil {
			return stepContext, err
		}

		if !ok {
			return stepContext, ErrConditionFalse
		}

		return next(ctx, stepContext)
	}, nil
}
