package otelsetup

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

// BuildTraceProvider creates a TracerProvider batching spans to every configured exporter.
// The W3C trace context propagator is installed globally.
func (o *Options) BuildTraceProvider(ctx context.Context) (*trace.TracerProvider, error) {
	opts := []trace.TracerProviderOption{
		trace.WithResource(o.resource()),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	}

	if o.Endpoint != "" {
		grpcOptions := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}

		creds, err := o.transportCredentials()
		switch {
		case err != nil:
			return nil, err
		case creds == nil:
			grpcOptions = append(grpcOptions, otlptracegrpc.WithInsecure())
		default:
			grpcOptions = append(grpcOptions, otlptracegrpc.WithTLSCredentials(creds))
		}

		exporter, err := otlptracegrpc.New(ctx, grpcOptions...)
		if err != nil {
			return nil, err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	if o.Stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(o.stdoutWriter()))
		if err != nil {
			return nil, err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return trace.NewTracerProvider(opts...), nil
}
