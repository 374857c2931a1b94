package processor

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithRun(env runtime.Environment) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.Run == "" {
			return nil
		}

		return &Run{
			stepName: spec.Name,
			script:   spec.Run,
			workDir:  spec.WorkDir,
			env:      env,
		}
	}
}

// Run executes the step script within the job environment.
type Run struct {
	stepName string
	script   string
	workDir  string
	env      runtime.Environment
}

func (s *Run) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		logger := logr.FromContextOrDiscard(ctx)
		if stepContext.Result != nil {
			stepContext.Result.Attempts++
		}

		logger.V(1).Info("execute step", "step", s.stepName, "index", stepContext.Index)
		exitCode, err := s.env.Exec(ctx, runtime.Command{
			Script:  s.script,
			WorkDir: s.workDir,
			Env:     stepContext.Env,
			Stdout:  stepContext.Stdout,
			Stderr:  stepContext.Stderr,
		})

		if stepContext.Result != nil {
			stepContext.Result.ExitCode = exitCode
		}

		if err != nil {
			return stepContext, fmt.Errorf("step `%s` execution failed: %w", s.stepName, err)
		}

		logger.V(1).Info("step exited", "step", s.stepName, "exit-code", exitCode)
		if exitCode != 0 {
			return stepContext, &StepError{
				JobID:    job.ID,
				Step:     s.stepName,
				Index:    stepContext.Index,
				ExitCode: exitCode,
			}
		}

		return next(ctx, stepContext)
	}, nil
}
