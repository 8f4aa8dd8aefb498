package matrix

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type expander struct {
	osEnv map[string]string
}

type Option func(*expander)

// WithOSEnv sets the environment used to resolve env vars declared without a value.
func WithOSEnv(env map[string]string) Option {
	return func(e *expander) {
		e.osEnv = env
	}
}

// Expand turns the matrix of a pipeline into its ordered job configs.
// The cartesian product comes first with the first axis varying slowest,
// followed by the include entries in declaration order. Includes are additive,
// they never replace or alter a product entry.
func Expand(spec v1beta1.PipelineSpec, opts ...Option) ([]JobConfig, error) {
	e := &expander{
		osEnv: make(map[string]string),
	}

	for _, o := range opts {
		o(e)
	}

	return e.expand(spec)
}

func (e *expander) expand(spec v1beta1.PipelineSpec) ([]JobConfig, error) {
	declared, err := validateAxes(spec.Matrix.Axes)
	if err != nil {
		return nil, err
	}

	for i, exclude := range spec.Matrix.Exclude {
		if err := checkDeclared(declared, exclude); err != nil {
			return nil, fmt.Errorf("exclude #%d: %w", i, err)
		}
	}

	pipelineBranches, err := compileBranches(spec.Branches)
	if err != nil {
		return nil, err
	}

	env := envMap(spec.Env, e.osEnv)
	var jobs []JobConfig

	if len(spec.Matrix.Axes) > 0 || len(spec.Matrix.Include) == 0 {
		for _, axes := range product(spec.Matrix.Axes) {
			if excluded(axes, spec.Matrix.Exclude) {
				continue
			}

			job := JobConfig{
				Name:  jobName("", spec.Matrix.Axes, axes),
				Axes:  axes,
				Vars:  mergeVars(spec.Vars, nil, axes),
				Env:   maps.Clone(env),
				Image: spec.Image,
			}

			if pipelineBranches != nil {
				job.branches = append(job.branches, *pipelineBranches)
			}

			jobs = append(jobs, job)
		}
	}

	for i, include := range spec.Matrix.Include {
		if err := checkDeclared(declared, include.Axes); err != nil {
			return nil, fmt.Errorf("include #%d: %w", i, err)
		}

		includeBranches, err := compileBranches(include.Branches)
		if err != nil {
			return nil, fmt.Errorf("include #%d: %w", i, err)
		}

		axes := maps.Clone(include.Axes)
		if axes == nil {
			axes = make(map[string]string)
		}

		job := JobConfig{
			Name:    jobName(include.Name, spec.Matrix.Axes, axes),
			Axes:    axes,
			Vars:    mergeVars(spec.Vars, include.Vars, axes),
			Env:     maps.Clone(env),
			Image:   spec.Image,
			Include: true,
		}

		maps.Copy(job.Env, envMap(include.Env, e.osEnv))

		if include.Image != "" {
			job.Image = include.Image
		}

		if pipelineBranches != nil {
			job.branches = append(job.branches, *pipelineBranches)
		}

		if includeBranches != nil {
			job.branches = append(job.branches, *includeBranches)
		}

		jobs = append(jobs, job)
	}

	uniqueNames(jobs)
	for i := range jobs {
		jobs[i].Index = i
	}

	return jobs, nil
}

func validateAxes(axes []v1beta1.Axis) (map[string]struct{}, error) {
	declared := make(map[string]struct{}, len(axes))

	for _, axis := range axes {
		if axis.Name == "" {
			return nil, errdefs.NewConfigurationError("matrix axis without a name")
		}

		if _, ok := declared[axis.Name]; ok {
			return nil, errdefs.NewConfigurationError("matrix axis %q declared twice", axis.Name)
		}

		if len(axis.Values) == 0 {
			return nil, errdefs.NewConfigurationError("matrix axis %q has no values", axis.Name)
		}

		seen := make(map[string]struct{}, len(axis.Values))
		for _, v := range axis.Values {
			if _, ok := seen[v]; ok {
				return nil, errdefs.NewConfigurationError("matrix axis %q has duplicate value %q", axis.Name, v)
			}

			seen[v] = struct{}{}
		}

		declared[axis.Name] = struct{}{}
	}

	return declared, nil
}

func checkDeclared(declared map[string]struct{}, values map[string]string) error {
	for name := range values {
		if _, ok := declared[name]; !ok {
			return errdefs.NewConfigurationError("axis %q is not declared in the matrix", name)
		}
	}

	return nil
}

// product builds the cartesian product of all axes. The last axis varies fastest.
func product(axes []v1beta1.Axis) []map[string]string {
	result := []map[string]string{{}}

	for _, axis := range axes {
		next := make([]map[string]string, 0, len(result)*len(axis.Values))
		for _, combination := range result {
			for _, value := range axis.Values {
				c := maps.Clone(combination)
				c[axis.Name] = value
				next = append(next, c)
			}
		}

		result = next
	}

	return result
}

func excluded(axes map[string]string, excludes []map[string]string) bool {
	for _, exclude := range excludes {
		if len(exclude) == 0 {
			continue
		}

		match := true
		for k, v := range exclude {
			if axes[k] != v {
				match = false
				break
			}
		}

		if match {
			return true
		}
	}

	return false
}

// mergeVars layers global vars, include vars and axis values. Axis values win.
func mergeVars(global, include, axes map[string]string) map[string]string {
	vars := make(map[string]string, len(global)+len(include)+len(axes))
	maps.Copy(vars, global)
	maps.Copy(vars, include)
	maps.Copy(vars, axes)
	return vars
}

func jobName(name string, axes []v1beta1.Axis, values map[string]string) string {
	if name != "" {
		return name
	}

	var parts []string
	for _, axis := range axes {
		if v, ok := values[axis.Name]; ok {
			parts = append(parts, v)
		}
	}

	if len(parts) == 0 {
		return "default"
	}

	return strings.Join(parts, "-")
}

func uniqueNames(jobs []JobConfig) {
	seen := make(map[string]int, len(jobs))
	for i := range jobs {
		n := seen[jobs[i].Name]
		seen[jobs[i].Name] = n + 1
		if n > 0 {
			jobs[i].Name = fmt.Sprintf("%s#%d", jobs[i].Name, n)
		}
	}
}

func compileBranches(filter *v1beta1.BranchFilter) (*branchPredicate, error) {
	if filter == nil || (len(filter.Only) == 0 && len(filter.Except) == 0) {
		return nil, nil
	}

	p := &branchPredicate{}
	for _, expr := range filter.Only {
		r, err := compileBranch(expr)
		if err != nil {
			return nil, err
		}
		p.only = append(p.only, r)
	}

	for _, expr := range filter.Except {
		r, err := compileBranch(expr)
		if err != nil {
			return nil, err
		}
		p.except = append(p.except, r)
	}

	return p, nil
}

func compileBranch(expr string) (*regexp.Regexp, error) {
	r, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, errdefs.NewConfigurationError("invalid branch filter `%s`: %s", expr, err)
	}

	return r, nil
}

func envMap(envs []v1beta1.EnvVar, osEnv map[string]string) map[string]string {
	env := make(map[string]string)
	for _, e := range envs {
		if e.Value == nil {
			if v, ok := osEnv[e.Name]; ok {
				env[e.Name] = v
			}

			continue
		}

		env[e.Name] = *e.Value
	}

	return env
}
