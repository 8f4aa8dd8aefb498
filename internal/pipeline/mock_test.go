package pipeline

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/raffis/matrun/internal/condition"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/runtime"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/require"
)

type execFunc func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error

// spyRuntime records every executed process by its name (<job>-<step>).
type spyRuntime struct {
	mu       sync.Mutex
	executed []string
	envs     map[string][]string
	exec     execFunc
}

func (s *spyRuntime) Exec(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
	s.mu.Lock()
	s.executed = append(s.executed, process.Name)
	if s.envs == nil {
		s.envs = make(map[string][]string)
	}
	s.envs[process.Name] = process.Env
	s.mu.Unlock()

	if s.exec == nil {
		return nil
	}

	return s.exec(ctx, process, stdout, stderr)
}

func (s *spyRuntime) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func (s *spyRuntime) Env(name string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := make(map[string]string)
	for _, e := range s.envs[name] {
		k, v, _ := strings.Cut(e, "=")
		env[k] = v
	}

	return env
}

func failOn(names ...string) execFunc {
	return func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
		for _, name := range names {
			if process.Name == name {
				return &runtime.Result{ExitCode: 1}
			}
		}

		return nil
	}
}

func writeEnvFile(process *runtime.Process, content string) error {
	for _, e := range process.Env {
		if path, ok := strings.CutPrefix(e, processor.EnvFileVar+"="); ok {
			return os.WriteFile(path, []byte(content), 0600)
		}
	}

	return nil
}

func testStepBuilder(t *testing.T, driver runtime.Interface) StepBuilder {
	t.Helper()

	evaluator, err := condition.New()
	require.NoError(t, err)

	return func(spec v1beta1.Step) []processor.Bootstraper {
		return processor.Builder(&spec,
			processor.WithResult(),
			processor.WithRecover(),
			processor.WithAllowFailure(),
			processor.WithIf(evaluator),
			processor.WithEnv(nil),
			processor.WithWorkingDir(),
			processor.WithRetry(),
			processor.WithTimeout(0),
			processor.WithRun(driver),
		)
	}
}

func newTestOrchestrator(t *testing.T, spec v1beta1.Pipeline, driver runtime.Interface, opts ...orchestratorOption) (*Orchestrator, []matrix.JobConfig) {
	t.Helper()

	p, err := NewBuilder(WithStepBuilder(testStepBuilder(t, driver))).Build(spec, "test-run")
	require.NoError(t, err)

	jobs, err := matrix.Expand(spec.Spec)
	require.NoError(t, err)

	o, err := NewOrchestrator(p, append([]orchestratorOption{WithWorkDir(t.TempDir())}, opts...)...)
	require.NoError(t, err)

	return o, jobs
}

func runtimeMatrix(values ...string) v1beta1.Matrix {
	return v1beta1.Matrix{
		Axes: []v1beta1.Axis{{Name: "runtime", Values: values}},
	}
}

type spyNotifier struct {
	mu       sync.Mutex
	started  []PipelineResult
	finished []PipelineResult
}

func (s *spyNotifier) Start(ctx context.Context, run PipelineResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, run)
}

func (s *spyNotifier) Finish(ctx context.Context, result PipelineResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, result)
}
