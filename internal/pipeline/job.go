package pipeline

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/xio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// JobRunner runs all phases of a job in its own working directory.
type JobRunner struct {
	pipeline    *pipeline
	workDir     string
	keepWorkdir bool
	branch      string
	baseEnv     map[string]string
	stdout      io.Writer
	stderr      io.Writer
	tracer      trace.Tracer
}

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Run never returns an error, faults are part of the JobResult.
func (r *JobRunner) Run(ctx context.Context, job matrix.JobConfig) JobResult {
	ctx, span := r.tracer.Start(ctx, job.Name, trace.WithAttributes(
		attribute.String("matrun.run_id", r.pipeline.ID()),
		attribute.String("matrun.pipeline", r.pipeline.Name()),
		attribute.String("matrun.job", job.Name),
	))
	defer span.End()

	logger := logr.FromContextOrDiscard(ctx).WithValues("job", job.Name)
	ctx = logr.NewContext(ctx, logger)

	result := JobResult{
		Name:      job.Name,
		Config:    job,
		Axes:      job.Axes,
		Status:    processor.StatusPassed,
		StartedAt: time.Now(),
	}

	defer func() {
		result.EndedAt = time.Now()
		span.SetAttributes(attribute.String("matrun.status", string(result.Status)))
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, result.Error.Error())
		}
	}()

	if ctx.Err() != nil {
		result.Status = processor.StatusErrored
		result.Error = NewErrAborted(ctx)
		return result
	}

	workspace, err := os.MkdirTemp(r.workDir, fmt.Sprintf("matrun-%s-", unsafeDirChars.ReplaceAllString(job.Name, "_")))
	if err != nil {
		result.Status = processor.StatusErrored
		result.Error = fmt.Errorf("failed to create job directory: %w", err)
		return result
	}

	result.Workdir = workspace
	if !r.keepWorkdir {
		defer func() {
			if err := os.RemoveAll(workspace); err != nil {
				logger.Error(err, "failed to remove job directory", "path", workspace)
			}
		}()
	}

	stepContext, err := r.stepContext(job, workspace)
	if err != nil {
		result.Status = processor.StatusErrored
		result.Error = err
		return result
	}

	logger.V(1).Info("job started", "workdir", workspace, "axes", job.Axes)

	for _, phase := range r.pipeline.phases {
		runner := &PhaseRunner{phase: phase}

		var phaseResult PhaseResult
		phaseResult, stepContext = runner.Run(ctx, stepContext)
		result.Phases = append(result.Phases, phaseResult)

		if phaseResult.Status != processor.StatusPassed {
			result.Status = phaseResult.Status
			result.Error = fmt.Errorf("phase %s: %w", phase.name, phaseResult.Error)
			break
		}
	}

	r.afterScript(ctx, stepContext, &result)

	logger.Info("job done", "status", result.Status, "duration", time.Since(result.StartedAt).Round(time.Millisecond))
	return result
}

// afterScript runs regardless of the job status and never changes it.
// It is not started once the pipeline is cancelled.
func (r *JobRunner) afterScript(ctx context.Context, stepContext processor.StepContext, result *JobResult) {
	if len(r.pipeline.afterScript.steps) == 0 || ctx.Err() != nil {
		return
	}

	stepContext.Vars = maps.Clone(stepContext.Vars)
	stepContext.Vars["MATRUN_JOB_STATUS"] = string(result.Status)
	stepContext.Envs["MATRUN_JOB_STATUS"] = string(result.Status)

	runner := &PhaseRunner{phase: r.pipeline.afterScript}
	phaseResult, _ := runner.Run(ctx, stepContext)
	result.Phases = append(result.Phases, phaseResult)

	if phaseResult.Status != processor.StatusPassed {
		logr.FromContextOrDiscard(ctx).Info("after_script did not pass", "status", phaseResult.Status, "error", phaseResult.Error)
	}
}

func (r *JobRunner) stepContext(job matrix.JobConfig, workspace string) (processor.StepContext, error) {
	stepContext := processor.NewContext(job.Name, workspace)
	stepContext.Branch = r.branch
	stepContext.Image = job.Image
	stepContext.Vars = maps.Clone(job.Vars)
	if stepContext.Vars == nil {
		stepContext.Vars = make(map[string]string)
	}

	stepContext.Envs = make(map[string]string, len(r.baseEnv)+len(job.Env))
	maps.Copy(stepContext.Envs, r.baseEnv)
	maps.Copy(stepContext.Envs, job.Env)

	stepContext.TmpDir = filepath.Join(workspace, ".matrun")
	if err := os.Mkdir(stepContext.TmpDir, 0700); err != nil {
		return stepContext, fmt.Errorf("failed to create job tmp directory: %w", err)
	}

	if r.stdout != nil {
		stepContext.Stdout = xio.NewPrefixWriter(r.stdout, []byte(fmt.Sprintf("[%s] ", job.Name)))
	}

	if r.stderr != nil {
		stepContext.Stderr = xio.NewPrefixWriter(r.stderr, []byte(fmt.Sprintf("[%s] ", job.Name)))
	}

	return stepContext, nil
}

func newNoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("")
}
