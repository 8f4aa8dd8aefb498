package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/errdefs"
)

type localOption func(*local)

// WithWaitDelay bounds how long output pipes are drained after the process exited or was killed.
func WithWaitDelay(d time.Duration) localOption {
	return func(l *local) {
		l.waitDelay = d
	}
}

func WithLocalLogger(logger logr.Logger) localOption {
	return func(l *local) {
		l.logger = logger
	}
}

type local struct {
	waitDelay time.Duration
	logger    logr.Logger
}

// NewLocal returns a runtime which executes processes on the host.
// Every process runs in its own process group which is killed as a whole once
// the context is done.
func NewLocal(opts ...localOption) *local {
	l := &local{
		waitDelay: 5 * time.Second,
		logger:    logr.Discard(),
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

func (l *local) Exec(ctx context.Context, process *Process, stdout, stderr io.Writer) error {
	if len(process.Args) == 0 {
		return fmt.Errorf("%w: empty command", errdefs.ErrSpawn)
	}

	logger := logr.FromContextOrDiscard(ctx)
	if logger.GetSink() == nil {
		logger = l.logger
	}

	cmd := exec.CommandContext(ctx, process.Args[0], process.Args[1:]...)
	cmd.Env = process.Env
	cmd.Dir = process.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}

	logger.V(3).Info("start process", "args", process.Args, "dir", process.Dir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrSpawn, err)
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("process killed: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Result{ExitCode: exitErr.ExitCode()}
	}

	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		return fmt.Errorf("wait for process failed: %w", err)
	}

	return nil
}
