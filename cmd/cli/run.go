package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/raffis/rigor/internal/dockersetup"
	"github.com/raffis/rigor/internal/kubesetup"
	"github.com/raffis/rigor/internal/logbridge"
	"github.com/raffis/rigor/internal/otelsetup"
	"github.com/raffis/rigor/internal/output"
	"github.com/raffis/rigor/internal/pipeline"
	"github.com/raffis/rigor/internal/report"
	"github.com/raffis/rigor/internal/runtime"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var runCmd = &cobra.Command{
	Use:   "run [ref]",
	Short: "Run the pipeline for a repository event",
	Long: `Run the pipeline for a repository event.

The pipeline definition is looked up from ref which is either a path to a pipeline file or an
oci:// reference. Without ref the rigor file in the working directory is used.
The exit code is 0 if every stage passed, 1 if any stage failed and 2 for configuration errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

type runFlags struct {
	load           loadFlags
	event          pipeline.EventOptions
	runtime        string        `env:"RUNTIME"`
	dryRun         bool          `env:"DRY_RUN"`
	output         string        `env:"OUTPUT"`
	report         report.Format `env:"REPORT"`
	reportOutput   string        `env:"REPORT_OUTPUT"`
	resultsFile    string        `env:"RESULTS_FILE"`
	sourcePath     string        `env:"SOURCE_PATH"`
	tmpDir         string        `env:"TMP_DIR"`
	acquireRetries uint64        `env:"ACQUIRE_RETRIES"`
	acquireBackoff time.Duration `env:"ACQUIRE_BACKOFF"`
	captureLimit   int           `env:"CAPTURE_LIMIT"`
	otelOptions    *otelsetup.Options
	dockerOptions  dockersetup.Options
	kubeOptions    *kubesetup.Options
}

var runArgs = newRunFlags()

func newRunFlags() runFlags {
	return runFlags{
		load:        newLoadFlags(),
		report:      report.FormatTable,
		otelOptions: otelsetup.DefaultOptions(),
		kubeOptions: kubesetup.DefaultOptions(),
	}
}

const otelName = "github.com/raffis/rigor"

const (
	runtimeLocal      = "local"
	runtimeDocker     = "docker"
	runtimeKubernetes = "kubernetes"
)

var runtimes = []string{runtimeLocal, runtimeDocker, runtimeKubernetes}

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runArgs.runtime, "runtime", "", runtimeLocal, fmt.Sprintf("Runtime serving environments which do not declare one. One of [%s].", strings.Join(runtimes, ", ")))
	flags.BoolVarP(&runArgs.dryRun, "dry-run", "", false, "Do not execute any step. Every environment is served by a runtime which only prints the step scripts.")
	flags.StringVarP(&runArgs.output, "output", "o", electDefaultOutput(), fmt.Sprintf("Renderer of the live job output. One of [%s].", strings.Join(outputModes(), ", ")))
	flags.VarP(&runArgs.report, "report", "r", "Report of all job outcomes at the end of the run. One of [none, table, json, yaml, markdown, timeline].")
	flags.StringVarP(&runArgs.reportOutput, "report-output", "", "", "Destination for the report. Defaults to stdout.")
	flags.StringVarP(&runArgs.resultsFile, "results-file", "", "", "Append the pipeline result to this history file.")
	flags.StringVarP(&runArgs.sourcePath, "source-path", "", ".", "Path of the checked out source every job validates.")
	flags.StringVarP(&runArgs.tmpDir, "tmp-dir", "", os.TempDir(), "Directory job workspaces of the local runtime are created in.")
	flags.Uint64VarP(&runArgs.acquireRetries, "acquire-retries", "", 0, "Retry the acquisition of an environment this many times.")
	flags.DurationVarP(&runArgs.acquireBackoff, "acquire-backoff", "", time.Second, "Initial backoff between environment acquisition attempts.")
	flags.IntVarP(&runArgs.captureLimit, "capture-limit", "", 0, "Maximum bytes of stdout and stderr captured per step. 0 uses the default limit.")

	runArgs.load.BindFlags(flags)
	runArgs.event.BindFlags(flags)
	runArgs.otelOptions.BindFlags(flags)
	runArgs.dockerOptions.BindFlags(flags)
	runArgs.kubeOptions.BindFlags(flags)

	rootCmd.AddCommand(runCmd)
}

func outputModes() []string {
	modes := make([]string, 0, len(output.Modes))
	for _, mode := range output.Modes {
		modes = append(modes, string(mode))
	}

	return modes
}

func electDefaultOutput() string {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return string(output.ModeGroup)
	}

	return string(output.ModePrefix)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv("GITHUB_ACTIONS") == "true" {
		runArgs.githubActionsProfile(cmd)
	}

	runArgs.dockerOptions.SetDefaultOptions(cmd.Flags())

	runArgs.otelOptions.ServiceVersion = version
	telemetry, err := runArgs.otelOptions.Build(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error(err, "failed to shutdown telemetry")
		}
	}()

	runLogger := logger
	if runArgs.otelOptions.Enabled() {
		runLogger, _, err = rootArgs.logOptions.Build(logbridge.OtelCore(telemetry.LoggerProvider.Logger(otelName), zapConfig.Level))
		if err != nil {
			return err
		}
	}

	event, err := runArgs.event.Event(os.Getenv)
	if err != nil {
		return &pipeline.ConfigError{Errs: []error{err}}
	}

	definition, err := runArgs.load.load(ctx, refFromArgs(args))
	if err != nil {
		return err
	}

	outputFactory, err := output.New(output.Mode(runArgs.output), output.Options{
		Stdout: stdout(),
		Stderr: os.Stderr,
		Color:  !rootArgs.noColor && isTerminal(os.Stdout),
	})
	if err != nil {
		return err
	}

	opts := []pipeline.BuilderOption{
		pipeline.WithLogger(runLogger),
		pipeline.WithDefaultRuntime(runArgs.runtime),
		pipeline.WithOutput(outputFactory),
		pipeline.WithTracer(telemetry.TracerProvider.Tracer(otelName)),
		pipeline.WithMeter(telemetry.MeterProvider.Meter(otelName)),
		pipeline.WithSourcePath(runArgs.sourcePath),
		pipeline.WithLookupEnv(os.LookupEnv),
		pipeline.WithAcquireRetries(runArgs.acquireRetries, runArgs.acquireBackoff),
		pipeline.WithCaptureLimit(runArgs.captureLimit),
	}

	for _, name := range requiredRuntimes(definition.Environments, runArgs.runtime) {
		rt, err := createRuntime(ctx, name, runLogger)
		if err != nil {
			return err
		}

		opts = append(opts, pipeline.WithRuntime(name, rt))
	}

	p, err := pipeline.NewBuilder(opts...).Build(definition)
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx, event)

	if err := writeReport(result); err != nil {
		runLogger.Error(err, "failed to write report", "format", runArgs.report, "output", runArgs.reportOutput)
	}

	if runArgs.resultsFile != "" {
		if err := recordResult(ctx, runLogger, result); err != nil {
			runLogger.Error(err, "failed to record result", "path", runArgs.resultsFile)
		}
	}

	return runErr
}

// requiredRuntimes returns the names of all runtimes referenced by environments
// together with the default runtime.
func requiredRuntimes(environments []v1beta1.Environment, defaultRuntime string) []string {
	names := []string{defaultRuntime}
	for _, env := range environments {
		if env.Runtime != "" && !slices.Contains(names, env.Runtime) {
			names = append(names, env.Runtime)
		}
	}

	return names
}

func createRuntime(ctx context.Context, name string, logger logr.Logger) (runtime.Interface, error) {
	if runArgs.dryRun {
		return dryRunRuntime(), nil
	}

	switch name {
	case runtimeLocal:
		return runtime.NewLocal(
			runtime.WithLocalLogger(logger),
			runtime.WithTmpDir(runArgs.tmpDir),
		), nil
	case runtimeDocker:
		c, err := runArgs.dockerOptions.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}

		policy, err := runArgs.dockerOptions.PullImagePolicy()
		if err != nil {
			return nil, err
		}

		return runtime.NewDocker(ctx, c,
			runtime.WithDockerLogger(logger),
			runtime.WithHidePullOutput(runArgs.dockerOptions.HidePull),
			runtime.WithPullPolicy(policy),
			runtime.WithDefaultImage(runArgs.dockerOptions.DefaultImage),
			runtime.WithPullOutput(os.Stderr),
		), nil
	case runtimeKubernetes:
		clientset, restConfig, err := runArgs.kubeOptions.Build()
		if err != nil {
			return nil, err
		}

		podTemplate, err := runArgs.kubeOptions.LoadPodTemplate()
		if err != nil {
			return nil, err
		}

		return runtime.NewKubernetes(clientset.CoreV1(), restConfig,
			runtime.WithKubernetesLogger(logger),
			runtime.WithPodTemplate(podTemplate),
			runtime.WithNamespace(runArgs.kubeOptions.TargetNamespace()),
			runtime.WithKubernetesDefaultImage(runArgs.kubeOptions.DefaultImage),
		), nil
	default:
		return nil, &pipeline.ConfigError{Errs: []error{
			fmt.Errorf("unknown runtime `%s`, must be one of: %s", name, strings.Join(runtimes, ", ")),
		}}
	}
}

// dryRunRuntime prints each step script instead of executing it.
func dryRunRuntime() runtime.Interface {
	return runtime.NewFake(runtime.WithExecFunc(func(spec runtime.EnvironmentSpec, cmd runtime.Command) runtime.FakeResult {
		return runtime.FakeResult{
			Stdout: fmt.Sprintf("[dry-run %s] %s\n", spec.Selector, strings.TrimSpace(cmd.Script)),
		}
	}))
}

func writeReport(result v1beta1.PipelineResult) error {
	if runArgs.report == report.FormatNone {
		return nil
	}

	var w io.Writer = stdout()
	if runArgs.reportOutput != "" && runArgs.reportOutput != "-" && runArgs.reportOutput != os.Stdout.Name() {
		f, err := os.OpenFile(runArgs.reportOutput, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640)
		if err != nil {
			return err
		}

		defer f.Close()
		w = f
	}

	return report.Write(w, runArgs.report, result)
}

// recordResult appends result to the results history. An interrupted run is still recorded.
func recordResult(ctx context.Context, logger logr.Logger, result v1beta1.PipelineResult) error {
	ctx = context.WithoutCancel(ctx)
	history := report.NewHistory(runArgs.resultsFile)

	last, found, err := history.Last(ctx, result.Pipeline)
	if err != nil {
		logger.Error(err, "failed to read previous result", "path", runArgs.resultsFile)
	}

	if found && last.Result.Outcome != result.Outcome {
		logger.Info("pipeline outcome changed", "pipeline", result.Pipeline, "previous", last.Result.Outcome, "current", result.Outcome, "since", last.RecordedAt)
	}

	return history.Append(ctx, result)
}
