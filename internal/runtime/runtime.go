package runtime

import (
	"context"
	"fmt"
	"io"
)

// Interface executes a single step process.
// A nonzero exit is reported as *Result, a process which could not be started
// wraps errdefs.ErrSpawn. Cancelling ctx kills the process.
type Interface interface {
	Exec(ctx context.Context, process *Process, stdout, stderr io.Writer) error
}

type Process struct {
	// Name identifies the process, used for container names.
	Name string
	// Args is the argv, Args[0] being the executable.
	Args []string
	// Env is a list of KEY=value pairs and the complete process environment.
	Env []string
	// Dir is the working directory.
	Dir string
	// Image is the container image, ignored by the local runtime.
	Image string
	// Volumes are host directories made available at the same path.
	Volumes []string
}

type PullImagePolicy string

var (
	PullImagePolicyAlways  PullImagePolicy = "always"
	PullImagePolicyNever   PullImagePolicy = "never"
	PullImagePolicyMissing PullImagePolicy = "missing"
)

func (p PullImagePolicy) Validate() error {
	switch p {
	case PullImagePolicyAlways, PullImagePolicyNever, PullImagePolicyMissing:
		return nil
	default:
		return fmt.Errorf("invalid pull policy `%s`, expected one of always, missing, never", p)
	}
}

type Result struct {
	ExitCode int
}

func (e *Result) Error() string {
	return fmt.Sprintf("process terminated with code %d", e.ExitCode)
}
