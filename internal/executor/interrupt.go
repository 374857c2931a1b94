package executor

import (
	"context"
)

type interruptKey struct{}

// WithInterrupt attaches a cooperative interrupt to ctx. Once ch is closed jobs
// are not started anymore and running jobs stop at their next step boundary.
// Running steps are not killed.
func WithInterrupt(ctx context.Context, ch <-chan struct{}) context.Context {
	return context.WithValue(ctx, interruptKey{}, ch)
}

func interrupted(ctx context.Context) bool {
	ch, ok := ctx.Value(interruptKey{}).(<-chan struct{})
	if !ok {
		return false
	}

	select {
	case <-ch:
		return true
	default:
		return false
	}
}
