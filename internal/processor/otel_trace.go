package processor

import (
	"context"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithOtelTrace(tracer trace.Tracer) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if tracer == nil {
			return nil
		}

		return &OtelTrace{
			stepName: spec.Name,
			tracer:   tracer,
		}
	}
}

type OtelTrace struct {
	stepName string
	tracer   trace.Tracer
}

func (s *OtelTrace) Bootstrap(job JobInfo, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		ctx, span := s.tracer.Start(ctx, s.stepName, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.name", job.Name),
			attribute.String("stage.name", job.Stage),
			attribute.Int("step.index", stepContext.Index),
		))
		defer span.End()

		ctx = logr.NewContext(ctx, logr.FromContextOrDiscard(ctx).WithValues(
			"step", s.stepName,
			"span-id", span.SpanContext().SpanID(),
			"trace-id", span.SpanContext().TraceID()),
		)

		stepContext, err := next(ctx, stepContext)
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("step.outcome", outcome.String()))
		if stepContext.Result != nil {
			span.SetAttributes(attribute.Int("step.exit_code", stepContext.Result.ExitCode))
		}

		if AbortOnError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return stepContext, err
	}, nil
}
