package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/internal/mask"
	"github.com/raffis/matrun/internal/runtime"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBuilder(t *testing.T) {
	driver := &mockRuntime{}
	assert.Nil(t, WithRun(driver)(&v1beta1.Step{Name: "empty"}))
	assert.NotNil(t, WithRun(driver)(&v1beta1.Step{Name: "script", Run: "true"}))
	assert.NotNil(t, WithRun(driver)(&v1beta1.Step{Name: "command", Command: []string{"true"}}))
}

func TestRunProcess(t *testing.T) {
	tests := []struct {
		name         string
		step         v1beta1.Step
		opts         []runOption
		expectedArgs []string
	}{
		{
			name:         "script runs in the default shell",
			step:         v1beta1.Step{Name: "test", Run: "make test"},
			expectedArgs: []string{"/bin/sh", "-c", "make test"},
		},
		{
			name:         "script runs in a custom shell",
			step:         v1beta1.Step{Name: "test", Run: "make test"},
			opts:         []runOption{WithShell("/bin/bash", "-eo", "pipefail", "-c")},
			expectedArgs: []string{"/bin/bash", "-eo", "pipefail", "-c", "make test"},
		},
		{
			name:         "command is used as argv",
			step:         v1beta1.Step{Name: "test", Command: []string{"go", "test", "./..."}},
			expectedArgs: []string{"go", "test", "./..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &mockRuntime{}
			processor := WithRun(driver, tt.opts...)(&tt.step)

			nextFunc, err := processor.Bootstrap(&mockPipeline{}, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				return stepContext, nil
			})
			require.NoError(t, err)

			stepContext := NewContext("linux-3.4", "/workspace")
			stepContext.Dir = "/workspace/src"
			stepContext.Image = "python:3.4"
			stepContext.Envs = map[string]string{"B": "2", "A": "1"}
			stepContext.Result = &StepResult{}

			_, err = nextFunc(context.Background(), stepContext)
			require.NoError(t, err)

			require.Len(t, driver.processes, 1)
			process := driver.processes[0]
			assert.Equal(t, tt.expectedArgs, process.Args)
			assert.Equal(t, "linux-3.4-test", process.Name)
			assert.Equal(t, []string{"A=1", "B=2"}, process.Env)
			assert.Equal(t, "/workspace/src", process.Dir)
			assert.Equal(t, "python:3.4", process.Image)
			assert.Equal(t, []string{"/workspace"}, process.Volumes)
			assert.Equal(t, 1, stepContext.Result.Attempts)
		})
	}
}

func TestRunResult(t *testing.T) {
	tests := []struct {
		name             string
		exec             execFunc
		expectedErr      error
		expectedExitCode int
		expectedStdout   string
		expectedStderr   string
		expectNext       bool
	}{
		{
			name: "success captures output",
			exec: func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
				fmt.Fprintln(stdout, "ok")
				fmt.Fprintln(stderr, "warning")
				return nil
			},
			expectedStdout: "ok\n",
			expectedStderr: "warning\n",
			expectNext:     true,
		},
		{
			name: "nonzero exit code is a step failure",
			exec: func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
				fmt.Fprintln(stderr, "boom")
				return &runtime.Result{ExitCode: 2}
			},
			expectedErr:      errdefs.ErrStepFailed,
			expectedExitCode: 2,
			expectedStderr:   "boom\n",
		},
		{
			name: "spawn error",
			exec: func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
				return fmt.Errorf("%w: no such file", errdefs.ErrSpawn)
			},
			expectedErr:      errdefs.ErrSpawn,
			expectedExitCode: -1,
		},
		{
			name: "secrets are masked in captured output",
			exec: func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
				fmt.Fprintln(stdout, "token=s3cr3t")
				return nil
			},
			expectedStdout: "token=***\n",
			expectNext:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secrets := mask.NewSecretStore(nil)
			secrets.AddSecrets([]byte("s3cr3t"))

			driver := &mockRuntime{exec: tt.exec}
			processor := WithRun(driver, WithSecretStore(secrets))(&v1beta1.Step{Name: "test", Run: "true"})

			nextCalled := false
			nextFunc, err := processor.Bootstrap(&mockPipeline{}, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				nextCalled = true
				return stepContext, nil
			})
			require.NoError(t, err)

			stepContext := NewContext("job", t.TempDir())
			stepContext.Result = &StepResult{}

			_, err = nextFunc(context.Background(), stepContext)
			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectedErr), err.Error())
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expectNext, nextCalled)
			assert.Equal(t, tt.expectedExitCode, stepContext.Result.ExitCode)
			assert.Equal(t, tt.expectedStdout, stepContext.Result.Stdout)
			assert.Equal(t, tt.expectedStderr, stepContext.Result.Stderr)
		})
	}
}

func TestRunTeesMaskedOutput(t *testing.T) {
	secrets := mask.NewSecretStore(nil)
	secrets.AddSecrets([]byte("s3cr3t"))

	driver := &mockRuntime{exec: func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
		_, _ = stdout.Write([]byte("using s3"))
		_, _ = stdout.Write([]byte("cr3t\nno newline"))
		return nil
	}}

	processor := WithRun(driver, WithSecretStore(secrets))(&v1beta1.Step{Name: "test", Run: "true"})
	nextFunc, err := processor.Bootstrap(&mockPipeline{}, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		return stepContext, nil
	})
	require.NoError(t, err)

	live := &bytes.Buffer{}
	stepContext := NewContext("job", t.TempDir())
	stepContext.Stdout = live
	stepContext.Result = &StepResult{}

	_, err = nextFunc(context.Background(), stepContext)
	require.NoError(t, err)
	assert.Equal(t, "using ***\nno newline\n", live.String())
	assert.Equal(t, "using ***\nno newline", stepContext.Result.Stdout)
}
