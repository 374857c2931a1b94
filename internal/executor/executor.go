package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/internal/mask"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/internal/output"
	"github.com/raffis/rigor/internal/processor"
	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/internal/xio"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

const (
	defaultCaptureLimit   = 64 * 1024
	defaultAcquireBackoff = 2 * time.Second
	releaseTimeout        = 30 * time.Second
)

// StepBuilder returns the processor chain of a step executed within env.
type StepBuilder func(spec *v1beta1.Step, env runtime.Environment) []processor.Bootstraper

// Executor runs single jobs on an environment acquired from the runtime resolver.
type Executor struct {
	resolver       *runtime.Resolver
	celEnv         *cel.Env
	actions        Actions
	secrets        *mask.SecretStore
	secretEnv      map[string]string
	output         output.Factory
	stepBuilder    StepBuilder
	tracer         trace.Tracer
	meter          metric.Meter
	logger         logr.Logger
	event          v1beta1.Event
	acquireRetries uint64
	acquireBackoff time.Duration
	captureLimit   int
}

type Option func(*Executor)

func WithLogger(logger logr.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithActions registers the actions available to `uses` steps.
func WithActions(actions Actions) Option {
	return func(e *Executor) {
		e.actions = actions
	}
}

// WithSecrets forwards the given variables to every job and masks their values in step output.
func WithSecrets(secrets map[string]string) Option {
	return func(e *Executor) {
		e.secretEnv = maps.Clone(secrets)
	}
}

func WithOutput(factory output.Factory) Option {
	return func(e *Executor) {
		e.output = factory
	}
}

// WithStepBuilder replaces the default step processor chain.
func WithStepBuilder(builder StepBuilder) Option {
	return func(e *Executor) {
		e.stepBuilder = builder
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(e *Executor) {
		e.meter = meter
	}
}

// WithEvent exposes the triggering event to step conditions.
func WithEvent(event v1beta1.Event) Option {
	return func(e *Executor) {
		e.event = event
	}
}

// WithAcquireRetries retries failed environment acquisitions with an exponential backoff.
func WithAcquireRetries(retries uint64, backoff time.Duration) Option {
	return func(e *Executor) {
		e.acquireRetries = retries
		if backoff > 0 {
			e.acquireBackoff = backoff
		}
	}
}

// WithCaptureLimit limits the captured output per step and stream. Leading bytes are dropped.
func WithCaptureLimit(limit int) Option {
	return func(e *Executor) {
		e.captureLimit = limit
	}
}

func New(resolver *runtime.Resolver, celEnv *cel.Env, opts ...Option) *Executor {
	e := &Executor{
		resolver:       resolver,
		celEnv:         celEnv,
		actions:        NewActions(nil),
		output:         output.Discard(),
		logger:         logr.Discard(),
		acquireBackoff: defaultAcquireBackoff,
		captureLimit:   defaultCaptureLimit,
	}

	for _, o := range opts {
		o(e)
	}

	e.secrets = mask.NewSecretStore(nil)
	for _, value := range e.secretEnv {
		e.secrets.AddSecrets(value)
	}

	if e.stepBuilder == nil {
		e.stepBuilder = e.defaultStepBuilder
	}

	return e
}

func (e *Executor) defaultStepBuilder(spec *v1beta1.Step, env runtime.Environment) []processor.Bootstraper {
	return processor.Builder(spec,
		processor.WithRecover(),
		processor.WithResult(),
		processor.WithOtelTrace(e.tracer),
		processor.WithOtelMetrics(e.meter),
		processor.WithIf(e.celEnv),
		processor.WithAllowFailure(),
		processor.WithRetry(),
		processor.WithTimeout(),
		processor.WithMask(e.secrets),
		processor.WithRun(env),
	)
}

// Run executes job and returns its result. Run never returns a non terminal outcome.
// A job which has been interrupted before its environment was acquired is Cancelled,
// infrastructure errors result in Errored and step failures or timeouts in Failed.
func (e *Executor) Run(ctx context.Context, job matrix.Job) (result v1beta1.JobResult) {
	info := processor.JobInfo{
		ID:          job.ID,
		Name:        job.Name,
		Stage:       job.Stage,
		Environment: job.Environment,
	}

	result = v1beta1.JobResult{
		ID:          job.ID,
		Name:        job.Name,
		Stage:       job.Stage,
		Environment: job.Environment,
		Matrix:      job.Matrix,
		Outcome:     v1beta1.OutcomePending,
		StartedAt:   time.Now(),
	}

	logger := e.logger.WithValues("job", job.Name, "job-id", job.ID, "stage", job.Stage)
	ctx = logr.NewContext(ctx, logger)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, job.Name, trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("stage.name", job.Stage),
			attribute.String("job.environment", job.Environment),
		))

		defer func() {
			span.SetAttributes(attribute.String("job.outcome", result.Outcome.String()))
			if result.Outcome != v1beta1.OutcomeSucceeded {
				span.SetStatus(codes.Error, result.Error)
			}
			span.End()
		}()
	}

	defer func() {
		result.EndedAt = time.Now()
		e.recordJob(ctx, info, result)
		logger.V(1).Info("job finished", "outcome", result.Outcome, "duration", result.Duration())
	}()

	if err := e.boundary(ctx, 0); err != nil {
		return e.abort(result, job, jobOutcome(err), err)
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, job.Timeout, processor.ErrTimeout)
		defer cancel()
	}

	logger.V(1).Info("acquire environment", "selector", job.Environment)
	env, err := e.acquire(ctx, job)
	if err != nil {
		err = e.contextErr(ctx, err, job.Timeout)
		return e.abort(result, job, jobOutcome(err), err)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := env.Release(releaseCtx); err != nil {
			logger.Error(err, "failed to release environment")
		}
	}()

	result.Outcome = v1beta1.OutcomeRunning
	stdout, stderr, closer := e.output(info)
	defer func() {
		if err := closer(); err != nil {
			logger.Error(err, "failed to flush job output")
		}
	}()

	stepContext := e.newStepContext(job, env)
	result.Outcome = v1beta1.OutcomeSucceeded

	for i, step := range job.Steps {
		if result.Outcome != v1beta1.OutcomeSucceeded {
			result.Steps = append(result.Steps, skipped(step, i))
			continue
		}

		if err := e.boundary(ctx, job.Timeout); err != nil {
			e.fail(&result, jobOutcome(err), "", err)
			result.Steps = append(result.Steps, skipped(step, i))
			continue
		}

		stepResult, err := e.runStep(ctx, info, env, stepContext, step, i, stdout, stderr)
		result.Steps = append(result.Steps, stepResult)

		if processor.AbortOnError(err) {
			err = e.contextErr(ctx, err, job.Timeout)
			e.fail(&result, jobOutcome(err), step.Name, err)
		}
	}

	return result
}

func (e *Executor) runStep(ctx context.Context, job processor.JobInfo, env runtime.Environment, parent processor.StepContext, step v1beta1.Step, index int, stdout, stderr io.Writer) (v1beta1.StepResult, error) {
	stepResult := v1beta1.StepResult{
		Name:      step.Name,
		Index:     index,
		StartedAt: time.Now(),
	}

	spec, err := e.actions.Resolve(step)
	if err != nil {
		return e.stepErrored(stepResult, err)
	}

	next, err := processor.Chain(job, e.stepBuilder(&spec, env)...)
	if err != nil {
		return e.stepErrored(stepResult, fmt.Errorf("step `%s`: %w", step.Name, err))
	}

	capturedStdout, capturedStderr := xio.NewTailBuffer(e.captureLimit), xio.NewTailBuffer(e.captureLimit)
	stepContext := parent.Child(index, spec.Env)
	stepContext.Stdout = io.MultiWriter(capturedStdout, stdout)
	stepContext.Stderr = io.MultiWriter(capturedStderr, stderr)

	stepContext, err = next(ctx, stepContext)
	if stepContext.Result != nil {
		stepResult = *stepContext.Result
	} else {
		stepResult.EndedAt = time.Now()
		stepResult.Outcome = processor.Outcome(err)
		if err != nil {
			stepResult.Error = err.Error()
		}
	}

	stepResult.Stdout = capturedStdout.String()
	stepResult.Stderr = capturedStderr.String()
	return stepResult, err
}

func (e *Executor) stepErrored(stepResult v1beta1.StepResult, err error) (v1beta1.StepResult, error) {
	stepResult.EndedAt = time.Now()
	stepResult.Outcome = v1beta1.OutcomeErrored
	stepResult.Error = err.Error()
	return stepResult, err
}

func (e *Executor) acquire(ctx context.Context, job matrix.Job) (runtime.Environment, error) {
	rt, spec, err := e.resolver.Resolve(job.Environment)
	if err != nil {
		return nil, &InfrastructureError{JobID: job.ID, Selector: job.Environment, Err: err}
	}

	spec.JobID = job.ID
	spec.JobName = job.Name
	spec.Source = job.Source
	if spec.Env == nil {
		spec.Env = make(map[string]string)
	}
	maps.Copy(spec.Env, e.secretEnv)

	var env runtime.Environment
	backoff := retry.WithMaxRetries(e.acquireRetries, retry.NewExponential(e.acquireBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		env, err = rt.Acquire(ctx, spec)
		if err != nil && errors.Is(err, runtime.ErrEnvironmentUnavailable) {
			logr.FromContextOrDiscard(ctx).V(1).Info("environment acquisition failed", "error", err.Error())
			return retry.RetryableError(err)
		}

		return err
	})

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		if !errors.Is(err, runtime.ErrEnvironmentUnavailable) {
			err = runtime.Unavailable(job.Environment, err)
		}

		return nil, &InfrastructureError{JobID: job.ID, Selector: job.Environment, Err: err}
	}

	return env, nil
}

// boundary returns an error if the job must not continue with its next step.
func (e *Executor) boundary(ctx context.Context, timeout time.Duration) error {
	if interrupted(ctx) {
		return ErrInterrupted
	}

	if err := ctx.Err(); err != nil {
		return e.contextErr(ctx, err, timeout)
	}

	return nil
}

// contextErr replaces err with the job timeout cause if the job deadline has been exceeded.
func (e *Executor) contextErr(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(context.Cause(ctx), processor.ErrTimeout) {
		return fmt.Errorf("job %w after %s: %w", processor.ErrTimeout, timeout, err)
	}

	return err
}

func (e *Executor) newStepContext(job matrix.Job, env runtime.Environment) processor.StepContext {
	stepContext := processor.NewContext()
	stepContext.Event = expression.EventVars(e.event)
	stepContext.Job = map[string]any{
		"id":          job.ID,
		"name":        job.Name,
		"stage":       job.Stage,
		"environment": job.Environment,
	}

	for _, v := range job.Matrix {
		stepContext.Matrix[v.Name] = v.Value
	}

	maps.Copy(stepContext.Env, job.Env)
	maps.Copy(stepContext.Env, jobEnv(job, env))
	return stepContext
}

func (e *Executor) abort(result v1beta1.JobResult, job matrix.Job, outcome v1beta1.Outcome, err error) v1beta1.JobResult {
	e.fail(&result, outcome, "", err)
	for i, step := range job.Steps {
		result.Steps = append(result.Steps, skipped(step, i))
	}

	return result
}

func (e *Executor) fail(result *v1beta1.JobResult, outcome v1beta1.Outcome, step string, err error) {
	result.Outcome = outcome
	result.FailedStep = step
	result.Error = err.Error()
}

func (e *Executor) recordJob(ctx context.Context, job processor.JobInfo, result v1beta1.JobResult) {
	if e.meter == nil {
		return
	}

	runs, err := e.meter.Int64Counter("rigor.job.runs",
		metric.WithDescription("Number of executed jobs by outcome"),
		metric.WithUnit("{job}"))
	if err != nil {
		return
	}

	duration, err := e.meter.Float64Histogram("rigor.job.duration",
		metric.WithDescription("Job duration"),
		metric.WithUnit("s"))
	if err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("stage", job.Stage),
		attribute.String("environment", job.Environment),
		attribute.String("outcome", result.Outcome.String()),
	)

	runs.Add(ctx, 1, attrs)
	duration.Record(ctx, result.Duration().Seconds(), attrs)
}

func jobOutcome(err error) v1beta1.Outcome {
	var infraErr *InfrastructureError
	switch {
	case errors.Is(err, ErrInterrupted):
		return v1beta1.OutcomeCancelled
	case errors.Is(err, processor.ErrTimeout):
		return v1beta1.OutcomeFailed
	case errors.As(err, &infraErr):
		return v1beta1.OutcomeErrored
	default:
		return processor.Outcome(err)
	}
}

func skipped(step v1beta1.Step, index int) v1beta1.StepResult {
	return v1beta1.StepResult{
		Name:    step.Name,
		Index:   index,
		Outcome: v1beta1.OutcomeSkipped,
	}
}

func jobEnv(job matrix.Job, env runtime.Environment) map[string]string {
	vars := map[string]string{
		"CI":                      "true",
		"RIGOR":                   "true",
		"RIGOR_JOB_ID":            job.ID,
		"RIGOR_JOB_NAME":          job.Name,
		"RIGOR_STAGE":             job.Stage,
		"RIGOR_ENVIRONMENT":       job.Environment,
		"RIGOR_WORKSPACE":         env.Workspace(),
		"RIGOR_SOURCE_PATH":       job.Source.Path,
		"RIGOR_SOURCE_REF":        job.Source.Ref,
		"RIGOR_SOURCE_SHA":        job.Source.SHA,
		"RIGOR_SOURCE_REPOSITORY": job.Source.Repository,
	}

	for _, v := range job.Matrix {
		vars["RIGOR_MATRIX_"+strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(v.Name))] = v.Value
	}

	return vars
}
