package processor

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/raffis/matrun/internal/condition"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// EnvFileVar names the variable pointing steps to their env file.
// KEY=value lines written to it become part of the job environment.
const EnvFileVar = "MATRUN_ENV"

type StepContext struct {
	Job    string
	Phase  v1beta1.PhaseName
	Branch string
	Image  string
	// Vars are the job variables guards are evaluated against.
	Vars map[string]string
	// Envs is the job environment including persisted deltas of previous steps.
	Envs map[string]string
	// Workspace is the job root directory, made available to container runtimes.
	Workspace string
	// Dir is the working directory of the step.
	Dir    string
	TmpDir string
	// EnvFile is the env file of the running step.
	EnvFile string
	// Stdout and Stderr receive live output, nil unless output is teed.
	Stdout io.Writer
	Stderr io.Writer
	Result *StepResult
}

func NewContext(job, workspace string) StepContext {
	return StepContext{
		Job:       job,
		Workspace: workspace,
		Dir:       workspace,
		TmpDir:    workspace,
		Vars:      make(map[string]string),
		Envs:      make(map[string]string),
	}
}

func (c StepContext) DeepCopy() StepContext {
	copy := c
	copy.Vars = maps.Clone(c.Vars)
	copy.Envs = maps.Clone(c.Envs)
	copy.Result = nil
	return copy
}

// Scope returns the guard evaluation scope of the context.
func (c StepContext) Scope() condition.Scope {
	return condition.Scope{
		Vars:   c.Vars,
		Env:    c.Envs,
		Branch: c.Branch,
	}
}

// Environ returns the process environment in stable order.
func (c StepContext) Environ() []string {
	envs := make([]string, 0, len(c.Envs))
	for _, k := range slices.Sorted(maps.Keys(c.Envs)) {
		envs = append(envs, fmt.Sprintf("%s=%s", k, c.Envs[k]))
	}

	return envs
}
