package otelsetup

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildLoggerProvider creates a LoggerProvider receiving the records forwarded by the zap bridge.
// It returns nil if no exporter is configured.
func (o *Options) BuildLoggerProvider(ctx context.Context) (*sdklog.LoggerProvider, error) {
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(o.resource())}

	if o.Endpoint != "" {
		grpcOptions := []otlploggrpc.Option{otlploggrpc.WithEndpoint(o.Endpoint)}

		creds, err := o.transportCredentials()
		switch {
		case err != nil:
			return nil, err
		case creds == nil:
			grpcOptions = append(grpcOptions, otlploggrpc.WithInsecure())
		default:
			grpcOptions = append(grpcOptions, otlploggrpc.WithTLSCredentials(creds))
		}

		exporter, err := otlploggrpc.New(ctx, grpcOptions...)
		if err != nil {
			return nil, err
		}

		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)))
	}

	if o.Stdout {
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(o.stdoutWriter()))
		if err != nil {
			return nil, err
		}

		opts = append(opts, sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	}

	if len(opts) == 1 {
		return nil, nil
	}

	return sdklog.NewLoggerProvider(opts...), nil
}
