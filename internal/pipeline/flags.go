package pipeline

import (
	"io"
	"time"

	"github.com/spf13/pflag"
)

// Options are the user facing orchestrator settings.
// Fields carry MATRUN_ prefixed environment defaults, see envconfig.
type Options struct {
	MaxParallel int           `env:"MAX_PARALLEL, default=0"`
	Branch      string        `env:"BRANCH"`
	WorkDir     string        `env:"WORKDIR"`
	KeepWorkdir bool          `env:"KEEP_WORKDIR, default=false"`
	Tee         bool          `env:"TEE, default=false"`
	StepTimeout time.Duration `env:"STEP_TIMEOUT, default=0s"`
}

// BindFlags registers the options, the current values are used as defaults.
func (o *Options) BindFlags(set *pflag.FlagSet) {
	set.IntVar(&o.MaxParallel, "max-parallel", o.MaxParallel, "Maximum number of jobs running concurrently, 0 means unbounded.")
	set.StringVar(&o.Branch, "branch", o.Branch, "Branch the pipeline runs for. Used by branch filters, guards and notification grouping.")
	set.StringVar(&o.WorkDir, "workdir", o.WorkDir, "Parent directory of the job directories. Defaults to the system temp dir.")
	set.BoolVar(&o.KeepWorkdir, "keep-workdir", o.KeepWorkdir, "Do not remove job directories after the run.")
	set.BoolVar(&o.Tee, "tee", o.Tee, "Stream step output prefixed with the job name.")
	set.DurationVar(&o.StepTimeout, "step-timeout", o.StepTimeout, "Default timeout for steps without a timeout, 0 means none.")
}

// Apply returns the orchestrator options for o. stdout and stderr receive live output if Tee is set.
func (o Options) Apply(stdout, stderr io.Writer) []orchestratorOption {
	opts := []orchestratorOption{
		WithMaxParallel(o.MaxParallel),
		WithBranch(o.Branch),
		WithKeepWorkdir(o.KeepWorkdir),
	}

	if o.WorkDir != "" {
		opts = append(opts, WithWorkDir(o.WorkDir))
	}

	if o.Tee {
		opts = append(opts, WithTee(stdout, stderr))
	}

	return opts
}
