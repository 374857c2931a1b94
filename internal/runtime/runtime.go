package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// ErrEnvironmentUnavailable is returned if an execution environment could not be provided
// or was lost outside of a command execution.
var ErrEnvironmentUnavailable = errors.New("environment unavailable")

// Interface provides isolated execution environments. Every job acquires its own environment.
type Interface interface {
	Acquire(ctx context.Context, spec EnvironmentSpec) (Environment, error)
}

// Environment is an ephemeral execution environment owned by exactly one job.
type Environment interface {
	// Exec runs cmd and returns its exit code. A non nil error is returned only if the
	// command could not be executed or its exit status could not be observed.
	Exec(ctx context.Context, cmd Command) (int, error)
	Workspace() string
	Release(ctx context.Context) error
}

type EnvironmentSpec struct {
	// Selector is the environment selector of the job, e.g. `ubuntu-latest`.
	Selector string
	JobID    string
	JobName  string
	Image    string
	Shell    []string
	Env      map[string]string
	Source   v1beta1.Source
}

type Command struct {
	Script  string
	WorkDir string
	Env     map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
}

type PullImagePolicy string

var (
	PullImagePolicyAlways  PullImagePolicy = "Always"
	PullImagePolicyNever   PullImagePolicy = "Never"
	PullImagePolicyMissing PullImagePolicy = "Missing"
)

// Unavailable wraps err with ErrEnvironmentUnavailable.
func Unavailable(selector string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: `%s`", ErrEnvironmentUnavailable, selector)
	}

	return fmt.Errorf("%w: `%s`: %w", ErrEnvironmentUnavailable, selector, err)
}

// Resolver maps environment selectors to runtimes.
type Resolver struct {
	environments   map[string]v1beta1.Environment
	runtimes       map[string]Interface
	defaultRuntime string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRuntime registers a runtime by name.
func WithRuntime(name string, runtime Interface) func(*Resolver) {
	return func(r *Resolver) {
		r.runtimes[name] = runtime
	}
}

// WithDefaultRuntime sets the runtime which serves selectors without an environment declaration.
// Without a default runtime undeclared selectors are unavailable.
func WithDefaultRuntime(name string) func(*Resolver) {
	return func(r *Resolver) {
		r.defaultRuntime = name
	}
}

func NewResolver(environments []v1beta1.Environment, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		environments: make(map[string]v1beta1.Environment, len(environments)),
		runtimes:     make(map[string]Interface),
	}

	for _, env := range environments {
		r.environments[env.Name] = env
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// Resolve returns the runtime and the environment spec for selector.
func (r *Resolver) Resolve(selector string) (Interface, EnvironmentSpec, error) {
	spec := EnvironmentSpec{
		Selector: selector,
	}

	runtimeName := r.defaultRuntime
	if env, ok := r.environments[selector]; ok {
		if env.Runtime != "" {
			runtimeName = env.Runtime
		}

		spec.Image = env.Image
		spec.Shell = env.Shell
		spec.Env = maps.Clone(env.Env)
	}

	if runtimeName == "" {
		return nil, spec, Unavailable(selector, errors.New("no runtime serves this environment"))
	}

	runtime, ok := r.runtimes[runtimeName]
	if !ok {
		return nil, spec, Unavailable(selector, fmt.Errorf("runtime `%s` not available", runtimeName))
	}

	return runtime, spec, nil
}

func envSlice(env map[string]string) []string {
	var envs []string
	for _, k := range slices.Sorted(maps.Keys(env)) {
		envs = append(envs, fmt.Sprintf("%s=%s", k, env[k]))
	}

	return envs
}

func shellCommand(shell []string, fallback []string, script string) []string {
	if len(shell) == 0 {
		shell = fallback
	}

	cmd := make([]string, 0, len(shell)+1)
	cmd = append(cmd, shell...)
	return append(cmd, script)
}
