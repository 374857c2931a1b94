package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func TestIfBuilder(t *testing.T) {
	celEnv, err := expression.NewEnv()
	require.NoError(t, err)

	tests := []struct {
		name      string
		spec      *v1beta1.Step
		expectNil bool
	}{
		{
			name:      "no if condition returns nil",
			spec:      &v1beta1.Step{},
			expectNil: true,
		},
		{
			name: "if condition present returns If struct",
			spec: &v1beta1.Step{
				If: "matrix.os == 'ubuntu-latest'",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bootstraper := WithIf(celEnv)(tt.spec)

			if tt.expectNil {
				assert.Nil(t, bootstraper)
				return
			}

			ifProcessor, ok := bootstraper.(*If)
			require.True(t, ok)
			assert.Equal(t, tt.spec.If, ifProcessor.condition)
		})
	}
}

func TestIfBootstrap(t *testing.T) {
	celEnv, err := expression.NewEnv()
	require.NoError(t, err)

	tests := []struct {
		name         string
		condition    string
		expectCalled bool
		expectErr    error
	}{
		{
			name:         "true condition calls next",
			condition:    "matrix.os == 'ubuntu-latest'",
			expectCalled: true,
		},
		{
			name:      "false condition skips",
			condition: "matrix.os == 'windows-latest'",
			expectErr: ErrConditionFalse,
		},
		{
			name:         "previous step result",
			condition:    "steps.build.outcome == 'Succeeded' && steps.build.exitCode == 0",
			expectCalled: true,
		},
		{
			name:         "env and job variables",
			condition:    "env.CI == 'true' && job.stage == 'test'",
			expectCalled: true,
		},
		{
			name:      "non bool result",
			condition: "matrix.os",
			expectErr: expression.ErrNotBool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifProcessor := &If{condition: tt.condition, celEnv: celEnv}
			called := false

			next, err := ifProcessor.Bootstrap(testJob, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				called = true
				return stepContext, nil
			})
			require.NoError(t, err)

			stepContext := NewContext()
			stepContext.Matrix["os"] = "ubuntu-latest"
			stepContext.Env["CI"] = "true"
			stepContext.Job["stage"] = "test"
			stepContext.Steps["build"] = &v1beta1.StepResult{Outcome: v1beta1.OutcomeSucceeded}

			_, err = next(context.Background(), stepContext)
			assert.Equal(t, tt.expectCalled, called)

			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestIfBootstrapCompilationError(t *testing.T) {
	celEnv, err := expression.NewEnv()
	require.NoError(t, err)

	ifProcessor := &If{condition: "matrix.os ==", celEnv: celEnv}
	_, err = ifProcessor.Bootstrap(testJob, nil)
	assert.Error(t, err)
}
