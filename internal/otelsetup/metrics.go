package otelsetup

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// BuildMeterProvider creates a MeterProvider with a periodic reader per exporter.
// Pending measurements are collected once more on shutdown, runs shorter than the
// export interval are therefore still reported.
func (o *Options) BuildMeterProvider(ctx context.Context) (*metric.MeterProvider, error) {
	opts := []metric.Option{metric.WithResource(o.resource())}

	if o.Endpoint != "" {
		grpcOptions := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.Endpoint)}

		creds, err := o.transportCredentials()
		switch {
		case err != nil:
			return nil, err
		case creds == nil:
			grpcOptions = append(grpcOptions, otlpmetricgrpc.WithInsecure())
		default:
			grpcOptions = append(grpcOptions, otlpmetricgrpc.WithTLSCredentials(creds))
		}

		exporter, err := otlpmetricgrpc.New(ctx, grpcOptions...)
		if err != nil {
			return nil, err
		}

		opts = append(opts, metric.WithReader(metric.NewPeriodicReader(exporter)))
	}

	if o.Stdout {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(o.stdoutWriter()))
		if err != nil {
			return nil, err
		}

		opts = append(opts, metric.WithReader(metric.NewPeriodicReader(exporter)))
	}

	if len(opts) == 1 {
		return nil, nil
	}

	return metric.NewMeterProvider(opts...), nil
}
