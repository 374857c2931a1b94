package executor

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/internal/output"
	"github.com/raffis/rigor/internal/processor"
	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func newTestJob(steps ...v1beta1.Step) matrix.Job {
	return matrix.Job{
		ID:          "a1b2c3",
		Name:        "test (ubuntu-latest)",
		Stage:       "test",
		Environment: "ubuntu-latest",
		Matrix:      []v1beta1.AxisValue{{Name: "os", Value: "ubuntu-latest"}},
		Steps:       steps,
		Env:         map[string]string{"RUST_BACKTRACE": "1"},
		Source:      v1beta1.Source{Path: "/src/pallas", SHA: "deadbeef"},
	}
}

func newTestExecutor(t *testing.T, fake *runtime.Fake, opts ...Option) *Executor {
	celEnv, err := expression.NewEnv()
	require.NoError(t, err)

	resolver := runtime.NewResolver(nil,
		runtime.WithRuntime("fake", fake),
		runtime.WithDefaultRuntime("fake"),
	)

	return New(resolver, celEnv, opts...)
}

func scripted(results map[string]runtime.FakeResult) runtime.FakeExecFunc {
	return func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		return results[cmd.Script]
	}
}

func outcomes(result v1beta1.JobResult) []v1beta1.Outcome {
	var outcomes []v1beta1.Outcome
	for _, step := range result.Steps {
		outcomes = append(outcomes, step.Outcome)
	}

	return outcomes
}

func TestRunSucceeded(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"cargo build": {Stdout: "Compiling pallas\n", Stderr: "warning: unused\n"},
	})))

	var live bytes.Buffer
	executor := newTestExecutor(t, fake, WithOutput(output.Passthrough(&live, io.Discard)))

	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "checkout", Uses: "checkout"},
		v1beta1.Step{Name: "toolchain", Uses: "toolchain", With: map[string]string{"toolchain": "stable"}},
		v1beta1.Step{Name: "build", Run: "cargo build"},
	))

	assert.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Empty(t, result.Error)
	assert.Empty(t, result.FailedStep)
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeSucceeded, v1beta1.OutcomeSucceeded, v1beta1.OutcomeSucceeded}, outcomes(result))
	assert.Equal(t, "Compiling pallas\n", result.Steps[2].Stdout)
	assert.Equal(t, "warning: unused\n", result.Steps[2].Stderr)
	assert.Equal(t, 2, result.Steps[2].Index)
	assert.Equal(t, 1, result.Steps[2].Attempts)
	assert.Equal(t, "Compiling pallas\n", live.String())
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.EndedAt.IsZero())

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, checkoutScript, calls[0].Script)
	assert.Equal(t, "/src/pallas", calls[0].Env["RIGOR_SOURCE_PATH"])
	assert.Equal(t, "deadbeef", calls[0].Env["RIGOR_SOURCE_SHA"])
	assert.Equal(t, "stable", calls[1].Env["INPUT_TOOLCHAIN"])
	assert.NotContains(t, calls[2].Env, "INPUT_TOOLCHAIN")
	assert.Equal(t, "1", calls[2].Env["RUST_BACKTRACE"])
	assert.Equal(t, "ubuntu-latest", calls[2].Env["RIGOR_MATRIX_OS"])
	assert.Equal(t, "a1b2c3", calls[2].Env["RIGOR_JOB_ID"])
	assert.Equal(t, "/fake/a1b2c3", calls[2].Env["RIGOR_WORKSPACE"])
	assert.Equal(t, "true", calls[2].Env["CI"])

	acquired := fake.Acquired()
	require.Len(t, acquired, 1)
	assert.Equal(t, "ubuntu-latest", acquired[0].Selector)
	assert.Equal(t, "a1b2c3", acquired[0].JobID)
	assert.Equal(t, []string{"a1b2c3"}, fake.Released())
}

func TestRunStepFailureSkipsRemainingSteps(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"cargo test": {ExitCode: 101, Stderr: "test failed\n"},
	})))

	executor := newTestExecutor(t, fake)
	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "build", Run: "cargo build"},
		v1beta1.Step{Name: "test", Run: "cargo test"},
		v1beta1.Step{Name: "doc", Run: "cargo doc"},
	))

	assert.Equal(t, v1beta1.OutcomeFailed, result.Outcome)
	assert.Equal(t, "test", result.FailedStep)
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeSucceeded, v1beta1.OutcomeFailed, v1beta1.OutcomeSkipped}, outcomes(result))
	assert.Equal(t, 101, result.Steps[1].ExitCode)
	assert.Equal(t, "test failed\n", result.Steps[1].Stderr)
	assert.Contains(t, result.Error, "exited with code 101")
	assert.Equal(t, []string{"cargo build", "cargo test"}, fake.CallsFor("a1b2c3"))
	assert.Equal(t, []string{"a1b2c3"}, fake.Released())
}

func TestRunContinueOnError(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"cargo clippy": {ExitCode: 1},
	})))

	executor := newTestExecutor(t, fake)
	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "clippy", Run: "cargo clippy", ContinueOnError: true},
		v1beta1.Step{Name: "fmt", Run: "cargo fmt --check"},
	))

	assert.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeFailed, v1beta1.OutcomeSucceeded}, outcomes(result))
}

func TestRunConditionalSteps(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"cargo build": {ExitCode: 1},
	})))

	executor := newTestExecutor(t, fake, WithEvent(v1beta1.Event{Kind: v1beta1.EventKindPush}))
	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "windows-only", Run: "echo windows", If: `matrix.os == "windows-latest"`},
		v1beta1.Step{Name: "push-only", Run: "echo push", If: `event.kind == "push"`},
		v1beta1.Step{Name: "build", Run: "cargo build", ContinueOnError: true},
		v1beta1.Step{Name: "on-failure", Run: "echo failed", If: `steps.build.outcome == "Failed"`},
	))

	assert.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, []v1beta1.Outcome{
		v1beta1.OutcomeSkipped,
		v1beta1.OutcomeSucceeded,
		v1beta1.OutcomeFailed,
		v1beta1.OutcomeSucceeded,
	}, outcomes(result))
	assert.Equal(t, []string{"echo push", "cargo build", "echo failed"}, fake.CallsFor("a1b2c3"))
}

func TestRunEnvironmentUnavailable(t *testing.T) {
	fake := runtime.NewFake(runtime.WithUnavailable("ubuntu-latest"))
	executor := newTestExecutor(t, fake, WithAcquireRetries(2, time.Millisecond))

	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "build", Run: "cargo build"},
	))

	assert.Equal(t, v1beta1.OutcomeErrored, result.Outcome)
	assert.Contains(t, result.Error, runtime.ErrEnvironmentUnavailable.Error())
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeSkipped}, outcomes(result))
	assert.Empty(t, fake.Calls())
	assert.Empty(t, fake.Released())
}

func TestRunUnresolvableEnvironment(t *testing.T) {
	celEnv, err := expression.NewEnv()
	require.NoError(t, err)

	executor := New(runtime.NewResolver(nil), celEnv)
	result := executor.Run(context.Background(), newTestJob(v1beta1.Step{Name: "build", Run: "cargo build"}))
	assert.Equal(t, v1beta1.OutcomeErrored, result.Outcome)
}

func TestAcquireInfrastructureError(t *testing.T) {
	fake := runtime.NewFake(runtime.WithUnavailable("ubuntu-latest"))
	executor := newTestExecutor(t, fake)

	_, err := executor.acquire(context.Background(), newTestJob())

	var infraErr *InfrastructureError
	require.ErrorAs(t, err, &infraErr)
	assert.Equal(t, "a1b2c3", infraErr.JobID)
	assert.Equal(t, "ubuntu-latest", infraErr.Selector)
	assert.ErrorIs(t, err, runtime.ErrEnvironmentUnavailable)
	assert.Equal(t, v1beta1.OutcomeErrored, jobOutcome(err))
}

func TestRunInterruptedBeforeStart(t *testing.T) {
	fake := runtime.NewFake()
	executor := newTestExecutor(t, fake)

	interrupt := make(chan struct{})
	close(interrupt)

	result := executor.Run(WithInterrupt(context.Background(), interrupt), newTestJob(
		v1beta1.Step{Name: "build", Run: "cargo build"},
	))

	assert.Equal(t, v1beta1.OutcomeCancelled, result.Outcome)
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeSkipped}, outcomes(result))
	assert.Empty(t, fake.Acquired())
}

func TestRunInterruptedBetweenSteps(t *testing.T) {
	interrupt := make(chan struct{})
	var once sync.Once

	fake := runtime.NewFake(runtime.WithExecFunc(func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		once.Do(func() { close(interrupt) })
		return runtime.FakeResult{Delay: 10 * time.Millisecond}
	}))

	executor := newTestExecutor(t, fake)
	result := executor.Run(WithInterrupt(context.Background(), interrupt), newTestJob(
		v1beta1.Step{Name: "build", Run: "cargo build"},
		v1beta1.Step{Name: "test", Run: "cargo test"},
	))

	assert.Equal(t, v1beta1.OutcomeCancelled, result.Outcome)
	assert.Contains(t, result.Error, ErrInterrupted.Error())
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeSucceeded, v1beta1.OutcomeSkipped}, outcomes(result))
	assert.Equal(t, []string{"a1b2c3"}, fake.Released())
}

func TestRunJobTimeout(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		return runtime.FakeResult{Delay: time.Second}
	}))

	executor := newTestExecutor(t, fake)
	job := newTestJob(
		v1beta1.Step{Name: "test", Run: "cargo test"},
		v1beta1.Step{Name: "doc", Run: "cargo doc"},
	)
	job.Timeout = 20 * time.Millisecond

	result := executor.Run(context.Background(), job)
	assert.Equal(t, v1beta1.OutcomeFailed, result.Outcome)
	assert.Equal(t, "test", result.FailedStep)
	assert.Contains(t, result.Error, processor.ErrTimeout.Error())
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeFailed, v1beta1.OutcomeSkipped}, outcomes(result))
}

func TestRunStepTimeout(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		return runtime.FakeResult{Delay: time.Second}
	}))

	executor := newTestExecutor(t, fake)
	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "test", Run: "cargo test", Timeout: metav1.Duration{Duration: 10 * time.Millisecond}},
	))

	assert.Equal(t, v1beta1.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Steps[0].Error, processor.ErrTimeout.Error())
}

func TestRunCancelled(t *testing.T) {
	fake := runtime.NewFake(runtime.WithAcquireDelay(time.Second))
	executor := newTestExecutor(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := executor.Run(ctx, newTestJob(v1beta1.Step{Name: "build", Run: "cargo build"}))
	assert.Equal(t, v1beta1.OutcomeCancelled, result.Outcome)
}

func TestRunRetry(t *testing.T) {
	attempts := 0
	fake := runtime.NewFake(runtime.WithExecFunc(func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		attempts++
		if attempts < 3 {
			return runtime.FakeResult{ExitCode: 1}
		}

		return runtime.FakeResult{}
	}))

	executor := newTestExecutor(t, fake)
	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "flaky", Run: "cargo test", Retry: &v1beta1.Retry{
			Constant:   metav1.Duration{Duration: time.Millisecond},
			MaxRetries: 3,
		}},
	))

	assert.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, 3, result.Steps[0].Attempts)
}

func TestRunSecretsMasked(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"publish": {Stdout: "using token s3cr3t\n"},
	})))

	var live bytes.Buffer
	executor := newTestExecutor(t, fake,
		WithSecrets(map[string]string{"REGISTRY_TOKEN": "s3cr3t"}),
		WithOutput(output.Passthrough(&live, io.Discard)),
	)

	result := executor.Run(context.Background(), newTestJob(v1beta1.Step{Name: "publish", Run: "publish"}))
	require.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, "using token ***\n", result.Steps[0].Stdout)
	assert.Equal(t, "using token ***\n", live.String())
	assert.Equal(t, "s3cr3t", fake.Acquired()[0].Env["REGISTRY_TOKEN"])
}

func TestRunCaptureLimit(t *testing.T) {
	fake := runtime.NewFake(runtime.WithExecFunc(scripted(map[string]runtime.FakeResult{
		"build": {Stdout: "0123456789"},
	})))

	executor := newTestExecutor(t, fake, WithCaptureLimit(4))
	result := executor.Run(context.Background(), newTestJob(v1beta1.Step{Name: "build", Run: "build"}))
	assert.Equal(t, "6789", result.Steps[0].Stdout)
}

func TestRunUnknownAction(t *testing.T) {
	fake := runtime.NewFake()
	executor := newTestExecutor(t, fake)

	result := executor.Run(context.Background(), newTestJob(v1beta1.Step{Name: "cache", Uses: "cache"}))
	assert.Equal(t, v1beta1.OutcomeErrored, result.Outcome)
	assert.Equal(t, "cache", result.FailedStep)
	assert.Equal(t, []v1beta1.Outcome{v1beta1.OutcomeErrored}, outcomes(result))
}

func TestRunCustomStepBuilder(t *testing.T) {
	fake := runtime.NewFake()
	var names []string

	executor := newTestExecutor(t, fake, WithStepBuilder(func(spec *v1beta1.Step, env runtime.Environment) []processor.Bootstraper {
		names = append(names, spec.Name)
		return processor.Builder(spec, processor.WithResult(), processor.WithRun(env))
	}))

	result := executor.Run(context.Background(), newTestJob(
		v1beta1.Step{Name: "a", Run: "a"},
		v1beta1.Step{Name: "b", Run: "b"},
	))

	assert.Equal(t, v1beta1.OutcomeSucceeded, result.Outcome)
	assert.Equal(t, []string{"a", "b"}, names)
}
