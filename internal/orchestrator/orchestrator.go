package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/raffis/rigor/internal/aggregate"
	"github.com/raffis/rigor/internal/executor"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// Runner executes a single job.
type Runner interface {
	Run(ctx context.Context, job matrix.Job) v1beta1.JobResult
}

// Orchestrator fans the jobs of a stage out to the runner.
type Orchestrator struct {
	runner     Runner
	logger     logr.Logger
	tracer     trace.Tracer
	expandOpts []matrix.Option
}

type Option func(*Orchestrator)

func WithLogger(logger logr.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithExpandOptions is used by RunStage to expand the stage matrix.
func WithExpandOptions(opts ...matrix.Option) Option {
	return func(o *Orchestrator) {
		o.expandOpts = append(o.expandOpts, opts...)
	}
}

func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		logger: logr.Discard(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunStage expands stage and runs all of its jobs. A stage which can not be expanded
// results in an Errored stage without jobs and an error wrapping matrix.ErrInvalidMatrix.
func (o *Orchestrator) RunStage(ctx context.Context, stage v1beta1.Stage) (v1beta1.StageResult, error) {
	jobs, err := matrix.Expand(stage, o.expandOpts...)
	if err != nil {
		return v1beta1.StageResult{
			Name:    stage.Name,
			Outcome: v1beta1.OutcomeErrored,
			Error:   err.Error(),
		}, fmt.Errorf("stage `%s`: %w", stage.Name, err)
	}

	return o.RunJobs(ctx, stage, jobs), nil
}

// RunJobs runs the already expanded jobs of stage concurrently, bounded by the stage's
// maxParallel. Results are reported in expansion order.
//
// Without failFast every job runs to completion regardless of its siblings.
// With failFast the first job which does not succeed interrupts the stage: jobs
// waiting for a slot are cancelled, running jobs stop at their next step boundary.
func (o *Orchestrator) RunJobs(ctx context.Context, stage v1beta1.Stage, jobs []matrix.Job) v1beta1.StageResult {
	logger := o.logger.WithValues("stage", stage.Name)
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, stage.Name, trace.WithAttributes(
			attribute.String("stage.name", stage.Name),
			attribute.Int("stage.jobs", len(jobs)),
			attribute.Bool("stage.fail_fast", stage.FailFast),
		))
		defer span.End()
	}

	logger.V(1).Info("stage started", "jobs", len(jobs), "fail-fast", stage.FailFast, "max-parallel", stage.MaxParallel)

	parallel := int64(len(jobs))
	if stage.MaxParallel > 0 && int64(stage.MaxParallel) < parallel {
		parallel = int64(stage.MaxParallel)
	}

	sem := semaphore.NewWeighted(max(parallel, 1))
	interrupt := make(chan struct{})
	var once sync.Once
	jobCtx := executor.WithInterrupt(ctx, interrupt)

	results := make([]v1beta1.JobResult, len(jobs))
	var g errgroup.Group

	for i, job := range jobs {
		g.Go(func() error {
			// A failed acquisition means ctx is done, the runner reports the job as cancelled.
			if err := sem.Acquire(ctx, 1); err == nil {
				defer sem.Release(1)
			}

			result := o.runner.Run(jobCtx, job)
			results[i] = result

			if stage.FailFast && result.Outcome != v1beta1.OutcomeSucceeded && result.Outcome != v1beta1.OutcomeCancelled {
				once.Do(func() {
					logger.Info("fail fast, interrupting remaining jobs", "job", job.Name, "outcome", result.Outcome)
					close(interrupt)
				})
			}

			return nil
		})
	}

	_ = g.Wait()

	stageResult := aggregate.Stage(stage.Name, results)
	logger.V(1).Info("stage finished", "outcome", stageResult.Outcome)

	if span != nil {
		span.SetAttributes(attribute.String("stage.outcome", stageResult.Outcome.String()))
		if !stageResult.Passed() {
			span.SetStatus(codes.Error, "stage did not pass")
		}
	}

	return stageResult
}
