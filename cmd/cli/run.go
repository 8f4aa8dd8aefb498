package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/raffis/matrun/internal/condition"
	"github.com/raffis/matrun/internal/dockersetup"
	"github.com/raffis/matrun/internal/mask"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/notify"
	"github.com/raffis/matrun/internal/otelsetup"
	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/report"
	"github.com/raffis/matrun/internal/runtime"
	"github.com/raffis/matrun/internal/storage"
	"github.com/raffis/matrun/internal/styles"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var runCmd = &cobra.Command{
	Use:   "run [pipeline-file]",
	Short: "Run every job of the pipeline matrix",
	Long: `Run expands the matrix of the pipeline definition into jobs and runs the phases of each job.
The definition is read from the given file, from stdin if the file is "-" or from .matrun.yaml in the current directory.`,
	Example: `  # Run all jobs with at most four in parallel
  matrun run --max-parallel 4 .matrun.yaml

  # Show the jobs which would run for the release branch
  matrun run --dry-run --branch release-1.0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

type containerRuntime string

var (
	containerRuntimeLocal  containerRuntime = "local"
	containerRuntimeDocker containerRuntime = "docker"
)

func (d containerRuntime) String() string {
	return string(d)
}

type runFlags struct {
	DryRun              bool          `env:"DRY_RUN, default=false"`
	Report              string        `env:"REPORT, default=table"`
	ReportOutput        string        `env:"REPORT_OUTPUT"`
	StateFile           string        `env:"STATE_FILE"`
	EnvFiles            []string      `env:"ENV_FILE"`
	Envs                []string      `env:"ENV"`
	Secrets             []string      `env:"SECRET"`
	SkipSteps           []string      `env:"SKIP_STEPS"`
	Runtime             string        `env:"RUNTIME, default=local"`
	Pull                string        `env:"PULL, default=missing"`
	GracefulTermination time.Duration `env:"GRACEFUL_TERMINATION, default=5s"`
	Pipeline            pipeline.Options
	otelOptions         *otelsetup.Options
	dockerOptions       dockersetup.Options
}

var runArgs = runFlags{
	otelOptions: otelsetup.DefaultOptions(),
}

const otelName = "github.com/raffis/matrun"

func init() {
	loadEnv(&runArgs)

	if runArgs.StateFile == "" {
		runArgs.StateFile = defaultStateFile()
	}

	flags := runCmd.Flags()
	flags.BoolVar(&runArgs.DryRun, "dry-run", runArgs.DryRun, "Print the resolved jobs without running any step.")
	flags.StringVarP(&runArgs.Report, "report", "r", runArgs.Report, "Report summary of the jobs at the end of execution. One of [none, table, json, markdown, timeline].")
	flags.StringVar(&runArgs.ReportOutput, "report-output", runArgs.ReportOutput, "Destination file for the report. Defaults to stdout.")
	flags.StringVar(&runArgs.StateFile, "state-file", runArgs.StateFile, "File holding the last status per pipeline and branch, used by notification triggers.")
	flags.StringSliceVar(&runArgs.EnvFiles, "env-file", runArgs.EnvFiles, "Load envs for the pipeline from dotenv files.")
	flags.StringSliceVarP(&runArgs.Envs, "env", "e", runArgs.Envs, "Pass envs to the pipeline as KEY=value. KEY alone takes the value from the current environment.")
	flags.StringSliceVar(&runArgs.Secrets, "secret", runArgs.Secrets, "Names of envs whose values are masked in any step output.")
	flags.StringSliceVar(&runArgs.SkipSteps, "skip-step", runArgs.SkipSteps, "Names of steps which are not executed and reported as skipped.")
	flags.StringVar(&runArgs.Runtime, "runtime", runArgs.Runtime, "Step runtime. One of [local, docker].")
	flags.StringVar(&runArgs.Pull, "pull", runArgs.Pull, "Pull images before running with the docker runtime. One of [always, missing, never].")
	flags.DurationVar(&runArgs.GracefulTermination, "graceful-termination", runArgs.GracefulTermination, "Time a cancelled step is given to exit before it is killed.")
	runArgs.Pipeline.BindFlags(flags)
	runArgs.otelOptions.BindFlags(flags)
	runArgs.dockerOptions.BindFlags(flags)

	rootCmd.AddCommand(runCmd)
}

func defaultStateFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, "matrun", "state.json")
}

func runRun(c *cobra.Command, args []string) error {
	if err := runArgs.githubActionsProfile(c.Flags()); err != nil {
		return err
	}

	reportType := report.Type(runArgs.Report)
	if err := reportType.Validate(); err != nil {
		return err
	}

	ctx, cancel := commandContext(c.Context())
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logr.NewContext(ctx, logger)

	spec, err := loadPipeline(ctx, args)
	if err != nil {
		return err
	}

	envs, err := pipelineEnv(runArgs.EnvFiles, runArgs.Envs)
	if err != nil {
		return err
	}

	osEnv := environ()
	lookupEnv := maps.Clone(osEnv)
	maps.Copy(lookupEnv, envs)

	jobs, err := matrix.Expand(spec.Spec, matrix.WithOSEnv(lookupEnv))
	if err != nil {
		return err
	}

	if runArgs.DryRun {
		var matched []matrix.JobConfig
		for _, job := range jobs {
			if job.MatchBranch(runArgs.Pipeline.Branch) {
				matched = append(matched, job)
			}
		}

		return report.Jobs(stdout, matched)
	}

	secrets := mask.NewSecretStore(nil)
	for _, name := range runArgs.Secrets {
		value, ok := lookupEnv[name]
		if !ok {
			logger.Info("secret not found in environment", "name", name)
			continue
		}

		secrets.AddSecrets([]byte(value))
	}

	driver, baseEnv, err := createContainerRuntime(containerRuntime(runArgs.Runtime), osEnv)
	if err != nil {
		return err
	}

	maps.Copy(baseEnv, envs)

	providers, err := runArgs.otelOptions.Build(ctx)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "failed to flush telemetry")
		}
	}()

	tracer := providers.TracerProvider.Tracer(otelName)
	meter := providers.MeterProvider.Meter(otelName)

	steps, err := stepBuilder(logger, lookupEnv, driver, secrets, tracer, meter)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	compiled, err := pipeline.NewBuilder(
		pipeline.WithStepBuilder(steps),
		pipeline.WithLogger(logger),
	).Build(spec, runID)
	if err != nil {
		return err
	}

	opts := runArgs.Pipeline.Apply(stdout, os.Stderr)
	opts = append(opts,
		pipeline.WithFailFast(spec.Spec.Matrix.FailFast),
		pipeline.WithPipelineTimeout(spec.Spec.Timeout.Duration),
		pipeline.WithBaseEnv(baseEnv),
		pipeline.WithTracer(tracer),
		pipeline.WithMeter(meter),
		pipeline.WithOrchestratorLogger(logger),
	)

	if len(spec.Spec.Notifications) > 0 {
		notifier, err := newNotifier(ctx, spec.Spec.Notifications)
		if err != nil {
			return err
		}

		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	orchestrator, err := pipeline.NewOrchestrator(compiled, opts...)
	if err != nil {
		return err
	}

	logger.V(1).Info("run pipeline", "pipeline", compiled.Name(), "id", runID, "jobs", len(jobs))
	result := orchestrator.Run(ctx, jobs)

	if err := writeReport(reportType, result); err != nil {
		logger.Error(err, "failed to write report")
	}

	if !result.Passed() {
		return &exitError{code: 1}
	}

	return nil
}

// loadPipeline reads the definition from the given ref, .matrun.yaml if none is given.
func loadPipeline(ctx context.Context, args []string) (v1beta1.Pipeline, error) {
	ref := ".matrun.yaml"
	if len(args) > 0 {
		ref = args[0]
	}

	store := storage.New(storage.StrictDecoder,
		storage.WithStdin(os.Stdin),
		storage.WithFile(),
	)

	return store.Lookup(ctx, ref)
}

func createContainerRuntime(d containerRuntime, osEnv map[string]string) (runtime.Interface, map[string]string, error) {
	switch d {
	case containerRuntimeLocal:
		return runtime.NewLocal(
			runtime.WithWaitDelay(runArgs.GracefulTermination),
			runtime.WithLocalLogger(logger),
		), maps.Clone(osEnv), nil
	case containerRuntimeDocker:
		policy := runtime.PullImagePolicy(runArgs.Pull)
		if err := policy.Validate(); err != nil {
			return nil, nil, err
		}

		c, err := runArgs.dockerOptions.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
		}

		return runtime.NewDocker(c,
			runtime.WithLogger(logger),
			runtime.WithPullPolicy(policy),
			runtime.WithPullOutput(os.Stderr),
		), make(map[string]string), nil
	default:
		return nil, nil, fmt.Errorf("invalid runtime `%s`, one of local|docker", d)
	}
}

// stepBuilder wires the processors of a step, the first one being the outermost.
func stepBuilder(
	logger logr.Logger,
	osEnv map[string]string,
	driver runtime.Interface,
	secrets *mask.SecretStore,
	tracer trace.Tracer,
	meter metric.Meter,
) (pipeline.StepBuilder, error) {
	evaluator, err := condition.New()
	if err != nil {
		return nil, err
	}

	withMetrics, err := processor.WithOtelMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(spec v1beta1.Step) []processor.Bootstraper {
		processors := processor.Builder(&spec,
			processor.WithResult(),
			processor.WithRecover(),
			processor.WithLogger(logger),
			processor.WithOtelTrace(tracer),
			withMetrics,
			processor.WithAllowFailure(),
			processor.WithSkipSteps(runArgs.SkipSteps),
			processor.WithIf(evaluator),
			processor.WithEnv(osEnv),
			processor.WithWorkingDir(),
			processor.WithRetry(),
			processor.WithTimeout(runArgs.Pipeline.StepTimeout),
			processor.WithRun(driver, processor.WithSecretStore(secrets)),
		)

		for _, p := range processors {
			logger.V(2).Info("register step processor", "step", spec.Name, "processor", fmt.Sprintf("%T", p))
		}

		return processors
	}, nil
}

func newNotifier(ctx context.Context, notifications []v1beta1.Notification) (*notify.Notifier, error) {
	cfg, err := notify.LoadConfig(ctx, nil)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(runArgs.StateFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return notify.FromSpec(notifications, cfg,
		notify.WithStore(notify.NewFileStore(runArgs.StateFile)),
		notify.WithLogger(logger),
	)
}

func writeReport(reportType report.Type, result pipeline.PipelineResult) error {
	if reportType == report.TypeNone {
		return nil
	}

	var w io.Writer = stdout
	if runArgs.ReportOutput != "" && runArgs.ReportOutput != "-" && runArgs.ReportOutput != "/dev/stdout" {
		f, err := os.OpenFile(runArgs.ReportOutput, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
		if err != nil {
			return err
		}

		defer func() {
			_ = f.Close()
		}()

		w = styles.Writer(f, true)
	}

	return report.Render(reportType, w, result)
}
