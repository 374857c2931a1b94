package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func TestAllowFailureBuilder(t *testing.T) {
	assert.Nil(t, WithAllowFailure()(&v1beta1.Step{}))
	assert.IsType(t, &AllowFailure{}, WithAllowFailure()(&v1beta1.Step{ContinueOnError: true}))
}

func TestAllowFailureBootstrap(t *testing.T) {
	tests := []struct {
		name         string
		nextErr      error
		expectAllow  bool
		expectAbort  bool
		expectNilErr bool
	}{
		{
			name:         "no error",
			expectNilErr: true,
		},
		{
			name:        "step failure is allowed",
			nextErr:     &StepError{ExitCode: 1},
			expectAllow: true,
		},
		{
			name:        "timeout is allowed",
			nextErr:     ErrTimeout,
			expectAllow: true,
		},
		{
			name:        "infrastructure error is not allowed",
			nextErr:     runtime.Unavailable("ubuntu-latest", errors.New("lost")),
			expectAbort: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowFailure := &AllowFailure{}
			next, err := allowFailure.Bootstrap(testJob, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				return stepContext, tt.nextErr
			})
			require.NoError(t, err)

			_, err = next(context.Background(), NewContext())
			if tt.expectNilErr {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.nextErr)
			assert.Equal(t, tt.expectAllow, errors.Is(err, ErrAllowFailure))
			assert.Equal(t, tt.expectAbort, AbortOnError(err))
		})
	}
}
