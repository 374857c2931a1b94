package otelsetup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
)

type Options struct {
	Endpoint    string
	Insecure    bool
	Stdout      bool
	ServiceName string
	// ServiceVersion is reported as service.version, it is not bound to a flag.
	ServiceVersion string
	CAFile         string
	CertFile       string
	KeyFile        string

	// stdout receives the exported signals if Stdout is set.
	stdout io.Writer
}

func DefaultOptions() *Options {
	return &Options{
		ServiceName: "rigor",
		stdout:      os.Stderr,
	}
}

func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "otel-endpoint", o.Endpoint, "OTLP gRPC endpoint to export traces, metrics and logs to.")
	fs.BoolVar(&o.Insecure, "otel-insecure", o.Insecure, "Connect to the OTLP endpoint without TLS.")
	fs.BoolVar(&o.Stdout, "otel-stdout", o.Stdout, "Dump traces, metrics and logs to stderr.")
	fs.StringVar(&o.ServiceName, "otel-service-name", o.ServiceName, "Service name reported to the OTLP endpoint.")
	fs.StringVar(&o.CAFile, "otel-ca-file", o.CAFile, "CA bundle used to verify the OTLP endpoint.")
	fs.StringVar(&o.CertFile, "otel-cert-file", o.CertFile, "Client certificate for the OTLP endpoint.")
	fs.StringVar(&o.KeyFile, "otel-key-file", o.KeyFile, "Client key for the OTLP endpoint.")
}

func (o *Options) Enabled() bool {
	return o.Endpoint != "" || o.Stdout
}

func (o *Options) stdoutWriter() io.Writer {
	if o.stdout == nil {
		return os.Stderr
	}

	return o.stdout
}

// resource describes this process on every exported signal.
func (o *Options) resource() *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(o.ServiceName),
	}

	if o.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(o.ServiceVersion))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// transportCredentials returns nil if the endpoint is insecure.
func (o *Options) transportCredentials() (credentials.TransportCredentials, error) {
	if o.Insecure {
		return nil, nil
	}

	cfg, err := o.getTLSConfig()
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(cfg), nil
}

func (o *Options) getTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read otel ca file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %q", o.CAFile)
		}

		cfg.RootCAs = pool
	}

	if o.CertFile != "" || o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load otel client certificate: %w", err)
		}

		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Telemetry holds the providers built from Options. Without any exporter
// configured the providers are no-ops.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	LoggerProvider otellog.LoggerProvider

	shutdown []func(context.Context) error
}

func (o *Options) Build(ctx context.Context) (*Telemetry, error) {
	t := &Telemetry{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
		LoggerProvider: lognoop.NewLoggerProvider(),
	}

	if !o.Enabled() {
		return t, nil
	}

	tp, err := o.BuildTraceProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	t.TracerProvider = tp
	t.shutdown = append(t.shutdown, tp.Shutdown)

	mp, err := o.BuildMeterProvider(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("setup metrics: %w", err), t.Shutdown(ctx))
	}

	if mp != nil {
		t.MeterProvider = mp
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}

	lp, err := o.BuildLoggerProvider(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("setup logging: %w", err), t.Shutdown(ctx))
	}

	if lp != nil {
		t.LoggerProvider = lp
		t.shutdown = append(t.shutdown, lp.Shutdown)
	}

	return t, nil
}

// Shutdown flushes and stops all providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdown[i](ctx))
	}

	t.shutdown = nil
	return errors.Join(errs...)
}
