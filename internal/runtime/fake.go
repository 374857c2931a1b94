package runtime

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// FakeResult scripts the result of one fake command execution.
type FakeResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Delay    time.Duration
	Err      error
}

// FakeExecFunc decides the result of a command executed in a fake environment.
type FakeExecFunc func(spec EnvironmentSpec, cmd Command) FakeResult

// FakeCall records one command executed by the fake runtime.
type FakeCall struct {
	JobID    string
	Selector string
	Script   string
	Env      map[string]string
}

type fakeOption func(*Fake)

// WithExecFunc scripts command results. Without an exec func every command succeeds.
func WithExecFunc(fn FakeExecFunc) func(*Fake) {
	return func(f *Fake) {
		f.exec = fn
	}
}

// WithUnavailable makes the acquisition of the given environment selectors fail.
func WithUnavailable(selectors ...string) func(*Fake) {
	return func(f *Fake) {
		f.unavailable = append(f.unavailable, selectors...)
	}
}

// WithAcquireDelay delays every acquisition.
func WithAcquireDelay(d time.Duration) func(*Fake) {
	return func(f *Fake) {
		f.acquireDelay = d
	}
}

// Fake is an in-memory runtime. It does not execute anything.
type Fake struct {
	exec         FakeExecFunc
	unavailable  []string
	acquireDelay time.Duration

	mu       sync.Mutex
	acquired []EnvironmentSpec
	released []string
	calls    []FakeCall
	active   int
	peak     int
}

func NewFake(opts ...fakeOption) *Fake {
	f := &Fake{}
	for _, o := range opts {
		o(f)
	}

	return f
}

func (f *Fake) Acquire(ctx context.Context, spec EnvironmentSpec) (Environment, error) {
	if err := sleep(ctx, f.acquireDelay); err != nil {
		return nil, err
	}

	if slices.Contains(f.unavailable, spec.Selector) {
		return nil, Unavailable(spec.Selector, nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, spec)
	f.active++
	f.peak = max(f.peak, f.active)

	return &fakeEnvironment{
		fake: f,
		spec: spec,
	}, nil
}

// Acquired returns the specs of all acquired environments.
func (f *Fake) Acquired() []EnvironmentSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.acquired)
}

// Released returns the job ids of all released environments.
func (f *Fake) Released() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.released)
}

// Calls returns every executed command in execution order.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the scripts executed for the given job.
func (f *Fake) CallsFor(jobID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var scripts []string
	for _, call := range f.calls {
		if call.JobID == jobID {
			scripts = append(scripts, call.Script)
		}
	}

	return scripts
}

// Peak returns the maximum number of concurrently acquired environments.
func (f *Fake) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type fakeEnvironment struct {
	fake *Fake
	spec EnvironmentSpec
}

func (e *fakeEnvironment) Workspace() string {
	return fmt.Sprintf("/fake/%s", e.spec.JobID)
}

func (e *fakeEnvironment) Exec(ctx context.Context, cmd Command) (int, error) {
	e.fake.mu.Lock()
	e.fake.calls = append(e.fake.calls, FakeCall{
		JobID:    e.spec.JobID,
		Selector: e.spec.Selector,
		Script:   cmd.Script,
		Env:      cmd.Env,
	})
	e.fake.mu.Unlock()

	var result FakeResult
	if e.fake.exec != nil {
		result = e.fake.exec(e.spec, cmd)
	}

	if err := sleep(ctx, result.Delay); err != nil {
		return -1, err
	}

	if result.Err != nil {
		return -1, result.Err
	}

	if cmd.Stdout != nil && result.Stdout != "" {
		_, _ = io.WriteString(cmd.Stdout, result.Stdout)
	}

	if cmd.Stderr != nil && result.Stderr != "" {
		_, _ = io.WriteString(cmd.Stderr, result.Stderr)
	}

	return result.ExitCode, nil
}

func (e *fakeEnvironment) Release(ctx context.Context) error {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	e.fake.released = append(e.fake.released, e.spec.JobID)
	e.fake.active--
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
