package pipeline

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/raffis/rigor/internal/executor"
	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/internal/output"
	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/internal/trigger"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

type builder struct {
	logger         logr.Logger
	celEnv         *cel.Env
	runtimes       map[string]runtime.Interface
	defaultRuntime string
	output         output.Factory
	tracer         trace.Tracer
	meter          metric.Meter
	sourcePath     string
	lookupEnv      func(string) (string, bool)
	acquireRetries uint64
	acquireBackoff time.Duration
	captureLimit   int
}

// BuilderOption configures the pipeline builder.
type BuilderOption func(*builder)

func WithLogger(logger logr.Logger) func(*builder) {
	return func(b *builder) {
		b.logger = logger
	}
}

// WithRuntime registers a runtime which environments may reference by name.
func WithRuntime(name string, rt runtime.Interface) func(*builder) {
	return func(b *builder) {
		b.runtimes[name] = rt
	}
}

// WithDefaultRuntime serves environment selectors which are not declared by the pipeline.
func WithDefaultRuntime(name string) func(*builder) {
	return func(b *builder) {
		b.defaultRuntime = name
	}
}

func WithOutput(factory output.Factory) func(*builder) {
	return func(b *builder) {
		b.output = factory
	}
}

func WithTracer(tracer trace.Tracer) func(*builder) {
	return func(b *builder) {
		b.tracer = tracer
	}
}

func WithMeter(meter metric.Meter) func(*builder) {
	return func(b *builder) {
		b.meter = meter
	}
}

// WithSourcePath sets the location of the validated source.
func WithSourcePath(path string) func(*builder) {
	return func(b *builder) {
		b.sourcePath = path
	}
}

// WithLookupEnv is used to look up the values of the pipeline secrets.
func WithLookupEnv(lookupEnv func(string) (string, bool)) func(*builder) {
	return func(b *builder) {
		b.lookupEnv = lookupEnv
	}
}

func WithAcquireRetries(retries uint64, backoff time.Duration) func(*builder) {
	return func(b *builder) {
		b.acquireRetries = retries
		b.acquireBackoff = backoff
	}
}

func WithCaptureLimit(limit int) func(*builder) {
	return func(b *builder) {
		b.captureLimit = limit
	}
}

func NewBuilder(opts ...BuilderOption) *builder {
	b := &builder{
		logger:    logr.Discard(),
		runtimes:  make(map[string]runtime.Interface),
		output:    output.Discard(),
		lookupEnv: os.LookupEnv,
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Build validates pipeline and returns a runnable pipeline.
// A malformed pipeline results in a *ConfigError.
func (b *builder) Build(pipeline v1beta1.Pipeline) (*Pipeline, error) {
	pipeline = *pipeline.DeepCopy()
	pipeline.SetDefaults()

	celEnv := b.celEnv
	if celEnv == nil {
		var err error
		celEnv, err = expression.NewEnv()
		if err != nil {
			return nil, err
		}
	}

	actions := executor.NewActions(pipeline.Actions)
	if err := Validate(pipeline.PipelineSpec, celEnv, actions); err != nil {
		return nil, err
	}

	evaluator, err := trigger.New(pipeline.On, celEnv, trigger.WithLogger(b.logger))
	if err != nil {
		return nil, &ConfigError{Errs: []error{err}}
	}

	resolverOpts := []runtime.ResolverOption{
		runtime.WithDefaultRuntime(b.defaultRuntime),
	}

	for name, rt := range b.runtimes {
		resolverOpts = append(resolverOpts, runtime.WithRuntime(name, rt))
	}

	b.logger.V(1).Info("pipeline built", "pipeline", pipeline.PipelineSpec.Name, "stages", len(pipeline.Stages))

	return &Pipeline{
		spec:     pipeline.PipelineSpec,
		digest:   pipeline.Annotations[v1beta1.DigestAnnotation],
		builder:  b,
		celEnv:   celEnv,
		actions:  actions,
		trigger:  evaluator,
		resolver: runtime.NewResolver(pipeline.Environments, resolverOpts...),
	}, nil
}
