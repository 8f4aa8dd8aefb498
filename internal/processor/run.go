package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/internal/mask"
	"github.com/raffis/matrun/internal/runtime"
	"github.com/raffis/matrun/internal/xio"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

var DefaultShell = []string{"/bin/sh", "-c"}

type runOption func(*Run)

// WithShell sets the interpreter for run scripts, the script is appended as last argument.
func WithShell(shell ...string) runOption {
	return func(r *Run) {
		r.shell = shell
	}
}

func WithSecretStore(secrets *mask.SecretStore) runOption {
	return func(r *Run) {
		r.secrets = secrets
	}
}

func WithRun(driver runtime.Interface, opts ...runOption) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.Run == "" && len(spec.Command) == 0 {
			return nil
		}

		r := &Run{
			stepName: spec.Name,
			script:   spec.Run,
			command:  spec.Command,
			driver:   driver,
			shell:    DefaultShell,
			secrets:  mask.NewSecretStore(nil),
		}

		for _, o := range opts {
			o(r)
		}

		return r
	}
}

// Run executes the step command and captures its output.
type Run struct {
	stepName string
	script   string
	command  []string
	shell    []string
	driver   runtime.Interface
	secrets  *mask.SecretStore
}

func (s *Run) args() []string {
	if len(s.command) > 0 {
		return slices.Clone(s.command)
	}

	return append(slices.Clone(s.shell), s.script)
}

func (s *Run) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		outWriter, flushOut := s.tee(stdout, stepContext.Stdout)
		errWriter, flushErr := s.tee(stderr, stepContext.Stderr)

		process := &runtime.Process{
			Name:    fmt.Sprintf("%s-%s", stepContext.Job, s.stepName),
			Args:    s.args(),
			Env:     stepContext.Environ(),
			Dir:     stepContext.Dir,
			Image:   stepContext.Image,
			Volumes: []string{stepContext.Workspace},
		}

		err := s.driver.Exec(ctx, process, outWriter, errWriter)
		flushOut()
		flushErr()

		if result := stepContext.Result; result != nil {
			result.Attempts++
			result.Stdout = s.secrets.MaskString(stdout.String())
			result.Stderr = s.secrets.MaskString(stderr.String())
			result.ExitCode = 0
		}

		var exitErr *runtime.Result
		if errors.As(err, &exitErr) {
			if stepContext.Result != nil {
				stepContext.Result.ExitCode = exitErr.ExitCode
			}

			return stepContext, fmt.Errorf("%w: %w", errdefs.ErrStepFailed, err)
		}

		if err != nil {
			if stepContext.Result != nil {
				stepContext.Result.ExitCode = -1
			}

			return stepContext, err
		}

		return next(ctx, stepContext)
	}, nil
}

// tee adds a masked line buffered live writer next to the capture buffer.
func (s *Run) tee(capture *bytes.Buffer, live io.Writer) (io.Writer, func()) {
	if live == nil {
		return capture, func() {}
	}

	lw := xio.NewLineWriter(s.secrets.Writer(live))
	return io.MultiWriter(capture, lw), func() {
		_ = lw.Flush()
	}
}
