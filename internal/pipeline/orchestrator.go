package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/xio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type orchestratorOption func(*Orchestrator)

// WithMaxParallel bounds the number of concurrently running jobs, 0 means unbounded.
func WithMaxParallel(n int) orchestratorOption {
	return func(o *Orchestrator) {
		o.maxParallel = n
	}
}

func WithFailFast(failFast bool) orchestratorOption {
	return func(o *Orchestrator) {
		o.failFast = failFast
	}
}

func WithBranch(branch string) orchestratorOption {
	return func(o *Orchestrator) {
		o.branch = branch
	}
}

// WithWorkDir sets the parent of the job directories, defaults to os.TempDir().
func WithWorkDir(dir string) orchestratorOption {
	return func(o *Orchestrator) {
		o.workDir = dir
	}
}

func WithKeepWorkdir(keep bool) orchestratorOption {
	return func(o *Orchestrator) {
		o.keepWorkdir = keep
	}
}

// WithBaseEnv sets the environment every job starts from, job env vars take precedence.
func WithBaseEnv(env map[string]string) orchestratorOption {
	return func(o *Orchestrator) {
		o.baseEnv = env
	}
}

// WithTee streams step output line by line prefixed with the job name.
func WithTee(stdout, stderr io.Writer) orchestratorOption {
	return func(o *Orchestrator) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

func WithTracer(tracer trace.Tracer) orchestratorOption {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithMeter(meter metric.Meter) orchestratorOption {
	return func(o *Orchestrator) {
		o.meter = meter
	}
}

// WithPipelineTimeout bounds the whole run, 0 means no timeout.
func WithPipelineTimeout(timeout time.Duration) orchestratorOption {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

// WithNotifier registers a notifier which is told about the start and the result of every run.
func WithNotifier(notifier Notifier) orchestratorOption {
	return func(o *Orchestrator) {
		o.notifiers = append(o.notifiers, notifier)
	}
}

func WithOrchestratorLogger(logger logr.Logger) orchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Notifier is called once before the first job starts and once with the final result.
type Notifier interface {
	Start(ctx context.Context, run PipelineResult)
	Finish(ctx context.Context, result PipelineResult)
}

var errPipelineTimeout = errors.New("pipeline timeout exceeded")

// Orchestrator runs the jobs of a compiled pipeline on a bounded worker pool.
type Orchestrator struct {
	pipeline    *pipeline
	maxParallel int
	failFast    bool
	branch      string
	workDir     string
	keepWorkdir bool
	baseEnv     map[string]string
	stdout      io.Writer
	stderr      io.Writer
	tracer      trace.Tracer
	meter       metric.Meter
	timeout     time.Duration
	notifiers   []Notifier
	logger      logr.Logger
	jobRuns     metric.Int64Counter
	jobDuration metric.Float64Histogram
}

func NewOrchestrator(p *pipeline, opts ...orchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		pipeline: p,
		workDir:  os.TempDir(),
		tracer:   newNoopTracer(),
		logger:   logr.Discard(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.maxParallel < 0 {
		return nil, fmt.Errorf("max parallel must not be negative: %d", o.maxParallel)
	}

	if o.stdout != nil {
		o.stdout = xio.NewSafeWriter(o.stdout)
	}

	if o.stderr != nil {
		o.stderr = xio.NewSafeWriter(o.stderr)
	}

	if o.meter != nil {
		var err error
		o.jobRuns, err = o.meter.Int64Counter("matrun.job.runs",
			metric.WithDescription("Number of finished jobs by status"),
			metric.WithUnit("{job}"))
		if err != nil {
			return nil, fmt.Errorf("failed to create job counter: %w", err)
		}

		o.jobDuration, err = o.meter.Float64Histogram("matrun.job.duration",
			metric.WithDescription("Duration of jobs"),
			metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("failed to create job duration histogram: %w", err)
		}
	}

	return o, nil
}

// Filter returns the jobs whose branch filter accepts the configured branch.
func (o *Orchestrator) Filter(jobs []matrix.JobConfig) []matrix.JobConfig {
	var matched []matrix.JobConfig
	for _, job := range jobs {
		if !job.MatchBranch(o.branch) {
			o.logger.Info("job skipped by branch filter", "job", job.Name, "branch", o.branch)
			continue
		}

		matched = append(matched, job)
	}

	return matched
}

// Run executes every job matching the branch and returns the aggregated result.
// Jobs which are interrupted or never started because ctx is done end Errored.
func (o *Orchestrator) Run(ctx context.Context, jobs []matrix.JobConfig) PipelineResult {
	ctx, span := o.tracer.Start(ctx, o.pipeline.Name(), trace.WithAttributes(
		attribute.String("matrun.run_id", o.pipeline.ID()),
		attribute.String("matrun.pipeline", o.pipeline.Name()),
		attribute.String("matrun.branch", o.branch),
	))
	defer span.End()

	jobs = o.Filter(jobs)
	result := PipelineResult{
		Name:      o.pipeline.Name(),
		RunID:     o.pipeline.ID(),
		Branch:    o.branch,
		StartedAt: time.Now(),
	}

	for _, notifier := range o.notifiers {
		notifier.Start(ctx, result)
	}

	// The start snapshot carries no jobs.
	result.Jobs = make([]JobResult, len(jobs))

	if o.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, o.timeout, errPipelineTimeout)
		defer cancelTimeout()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	runner := &JobRunner{
		pipeline:    o.pipeline,
		workDir:     o.workDir,
		keepWorkdir: o.keepWorkdir,
		branch:      o.branch,
		baseEnv:     o.baseEnv,
		stdout:      o.stdout,
		stderr:      o.stderr,
		tracer:      o.tracer,
	}

	ctx = logr.NewContext(ctx, o.logger.WithValues("pipeline", o.pipeline.Name(), "run", o.pipeline.ID()))

	var g errgroup.Group
	if o.maxParallel > 0 {
		g.SetLimit(o.maxParallel)
	}

	for i, job := range jobs {
		g.Go(func() error {
			jobResult := runner.Run(ctx, job)
			if jobResult.Status != processor.StatusPassed && o.failFast {
				cancel(errFailFast)
			}

			o.record(ctx, jobResult)
			result.Jobs[i] = jobResult
			return nil
		})
	}

	_ = g.Wait()

	result.EndedAt = time.Now()
	result.Status = aggregate(result.Jobs)
	span.SetAttributes(attribute.String("matrun.status", string(result.Status)))

	o.logger.Info("pipeline done", "status", result.Status, "jobs", len(result.Jobs), "duration", result.Duration().Round(time.Millisecond))

	for _, notifier := range o.notifiers {
		notifier.Finish(context.WithoutCancel(ctx), result)
	}

	return result
}

func (o *Orchestrator) record(ctx context.Context, job JobResult) {
	if o.jobRuns == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("matrun.pipeline", o.pipeline.Name()),
		attribute.String("matrun.job", job.Name),
		attribute.String("matrun.status", string(job.Status)),
	)

	o.jobRuns.Add(context.WithoutCancel(ctx), 1, attrs)
	o.jobDuration.Record(context.WithoutCancel(ctx), job.Duration().Seconds(), attrs)
}
