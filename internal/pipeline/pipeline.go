package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raffis/rigor/internal/aggregate"
	"github.com/raffis/rigor/internal/executor"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/internal/orchestrator"
	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/internal/trigger"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// Pipeline is a validated pipeline definition.
type Pipeline struct {
	spec     v1beta1.PipelineSpec
	digest   string
	builder  *builder
	celEnv   *cel.Env
	actions  executor.Actions
	trigger  *trigger.Evaluator
	resolver *runtime.Resolver
}

// PlannedStage is a stage together with its expanded jobs.
type PlannedStage struct {
	Stage v1beta1.Stage
	Jobs  []matrix.Job
}

func (p *Pipeline) Name() string {
	return p.spec.Name
}

func (p *Pipeline) Spec() v1beta1.PipelineSpec {
	return p.spec
}

// ShouldRun reports whether event triggers the pipeline.
func (p *Pipeline) ShouldRun(event v1beta1.Event) (bool, error) {
	ok, err := p.trigger.Evaluate(event)
	if err != nil {
		return false, &ConfigError{Errs: []error{err}}
	}

	return ok, nil
}

// Plan expands every stage for event. Expansion errors are configuration errors,
// they are raised before any job is executed.
func (p *Pipeline) Plan(event v1beta1.Event) ([]PlannedStage, error) {
	opts := []matrix.Option{
		matrix.WithVars(event.Vars()),
		matrix.WithSource(event.Source(p.builder.sourcePath)),
	}

	var errs []error
	plan := make([]PlannedStage, 0, len(p.spec.Stages))
	for _, stage := range p.spec.Stages {
		jobs, err := matrix.Expand(stage, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		plan = append(plan, PlannedStage{
			Stage: stage,
			Jobs:  jobs,
		})
	}

	if len(errs) > 0 {
		return nil, &ConfigError{Errs: errs}
	}

	return plan, nil
}

// Run executes the pipeline for event. The returned result is complete even if an error
// is returned. The error is a *ConfigError if the pipeline could not be planned and an
// *aggregate.AggregateError if any stage did not pass.
func (p *Pipeline) Run(ctx context.Context, event v1beta1.Event) (v1beta1.PipelineResult, error) {
	logger := p.builder.logger.WithValues("pipeline", p.spec.Name)
	ctx = logr.NewContext(ctx, logger)

	result := v1beta1.PipelineResult{
		Pipeline:  p.spec.Name,
		Digest:    p.digest,
		Event:     event,
		Outcome:   v1beta1.OutcomePending,
		StartedAt: time.Now(),
	}

	triggered, err := p.ShouldRun(event)
	if err != nil {
		result.Outcome = v1beta1.OutcomeErrored
		result.EndedAt = time.Now()
		return result, err
	}

	if !triggered {
		logger.Info("event does not trigger the pipeline", "kind", event.Kind, "ref", event.Ref)
		result.Outcome = v1beta1.OutcomeSucceeded
		result.EndedAt = time.Now()
		return result, nil
	}

	plan, err := p.Plan(event)
	if err != nil {
		result.Outcome = v1beta1.OutcomeErrored
		result.EndedAt = time.Now()
		return result, err
	}

	var span trace.Span
	if p.builder.tracer != nil {
		ctx, span = p.builder.tracer.Start(ctx, fmt.Sprintf("pipeline %s", p.spec.Name), trace.WithAttributes(
			attribute.String("pipeline.name", p.spec.Name),
			attribute.String("event.kind", string(event.Kind)),
			attribute.String("event.sha", event.SHA),
		))
		defer span.End()
	}

	stageRunner := orchestrator.New(p.executor(event),
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(p.builder.tracer),
	)

	stages := p.runStages(ctx, stageRunner, plan)

	aggregated := aggregate.Aggregate(stages)
	aggregated.Pipeline = p.spec.Name
	aggregated.Digest = p.digest
	aggregated.Event = event
	aggregated.StartedAt = result.StartedAt
	aggregated.EndedAt = time.Now()

	logger.V(1).Info("pipeline finished", "outcome", aggregated.Outcome, "duration", aggregated.EndedAt.Sub(aggregated.StartedAt))

	err = aggregate.Err(aggregated)
	if span != nil {
		span.SetAttributes(attribute.String("pipeline.outcome", aggregated.Outcome.String()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}

	return aggregated, err
}

func (p *Pipeline) executor(event v1beta1.Event) *executor.Executor {
	secrets := make(map[string]string, len(p.spec.Secrets))
	for _, name := range p.spec.Secrets {
		if value, ok := p.builder.lookupEnv(name); ok && value != "" {
			secrets[name] = value
		}
	}

	opts := []executor.Option{
		executor.WithLogger(p.builder.logger),
		executor.WithActions(p.actions),
		executor.WithEvent(event),
		executor.WithSecrets(secrets),
		executor.WithOutput(p.builder.output),
		executor.WithTracer(p.builder.tracer),
		executor.WithMeter(p.builder.meter),
		executor.WithAcquireRetries(p.builder.acquireRetries, p.builder.acquireBackoff),
	}

	if p.builder.captureLimit > 0 {
		opts = append(opts, executor.WithCaptureLimit(p.builder.captureLimit))
	}

	return executor.New(p.resolver, p.celEnv, opts...)
}
