package processor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func WithOtelMetrics(meter metric.Meter) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if meter == nil {
			return nil
		}

		return &OtelMetrics{
			stepName: spec.Name,
			meter:    meter,
		}
	}
}

type OtelMetrics struct {
	stepName string
	meter    metric.Meter
}

func (s *OtelMetrics) Bootstrap(job JobInfo, next Next) (Next, error) {
	runs, err := s.meter.Int64Counter("rigor.step.runs",
		metric.WithDescription("Number of executed steps by outcome"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}

	duration, err := s.meter.Float64Histogram("rigor.step.duration",
		metric.WithDescription("Step duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		start := time.Now()
		stepContext, err := next(ctx, stepContext)

		attrs := metric.WithAttributes(
			attribute.String("stage", job.Stage),
			attribute.String("environment", job.Environment),
			attribute.String("step", s.stepName),
			attribute.String("outcome", Outcome(err).String()),
		)

		runs.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)

		return stepContext, err
	}, nil
}
