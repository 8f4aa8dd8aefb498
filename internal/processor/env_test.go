package processor

import (
	"context"
	"os"
	"testing"

	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvBuilder(t *testing.T) {
	bootstraper := WithEnv(map[string]string{"FROM_OS": "os"})(&v1beta1.Step{
		Name: "step",
		Env: []v1beta1.EnvVar{
			{Name: "STATIC", Value: stringPtr("value")},
			{Name: "FROM_OS"},
			{Name: "MISSING"},
		},
	})

	env, ok := bootstraper.(*Env)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"STATIC": "value", "FROM_OS": "os"}, env.stepEnv)
}

func TestEnvBootstrap(t *testing.T) {
	tests := []struct {
		name          string
		jobEnv        map[string]string
		stepEnv       []v1beta1.EnvVar
		envFile       string
		expectedEnv   map[string]string
		expectedDelta map[string]string
		expectedStep  map[string]string
		expectErr     bool
	}{
		{
			name:        "job env is passed through",
			jobEnv:      map[string]string{"A": "1"},
			expectedEnv: map[string]string{"A": "1"},
			expectedStep: map[string]string{
				"A": "1",
			},
		},
		{
			name:        "step env does not persist",
			jobEnv:      map[string]string{"A": "1"},
			stepEnv:     []v1beta1.EnvVar{{Name: "B", Value: stringPtr("2")}},
			expectedEnv: map[string]string{"A": "1"},
			expectedStep: map[string]string{
				"A": "1",
				"B": "2",
			},
		},
		{
			name:          "env file deltas persist",
			jobEnv:        map[string]string{"A": "1"},
			envFile:       "CONDA_PREFIX=/opt/env\nA=overridden\n",
			expectedEnv:   map[string]string{"A": "overridden", "CONDA_PREFIX": "/opt/env"},
			expectedDelta: map[string]string{"A": "overridden", "CONDA_PREFIX": "/opt/env"},
			expectedStep: map[string]string{
				"A": "1",
			},
		},
		{
			name:        "env file var itself is not persisted",
			envFile:     "MATRUN_ENV=/elsewhere\n",
			expectedEnv: map[string]string{},
		},
		{
			name:        "invalid env file",
			jobEnv:      map[string]string{"A": "1"},
			envFile:     "A='unterminated\n",
			expectedEnv: map[string]string{"A": "1"},
			expectErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := WithEnv(nil)(&v1beta1.Step{Name: "step", Env: tt.stepEnv})

			var stepEnvs map[string]string
			var envFile string
			next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				stepEnvs = stepContext.Envs
				envFile = stepContext.EnvFile
				if tt.envFile != "" {
					require.NoError(t, os.WriteFile(stepContext.EnvFile, []byte(tt.envFile), 0600))
				}

				return stepContext, nil
			}

			nextFunc, err := processor.Bootstrap(&mockPipeline{}, next)
			require.NoError(t, err)

			stepContext := NewContext("job", t.TempDir())
			if tt.jobEnv != nil {
				stepContext.Envs = tt.jobEnv
			}
			stepContext.Result = &StepResult{}

			out, err := nextFunc(context.Background(), stepContext)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, envFile, stepEnvs[EnvFileVar])
			for k, v := range tt.expectedStep {
				assert.Equal(t, v, stepEnvs[k])
			}

			assert.Equal(t, tt.expectedEnv, out.Envs)
			assert.Equal(t, tt.expectedDelta, out.Result.EnvDelta)
			assert.Empty(t, out.EnvFile)

			_, err = os.Stat(envFile)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestEnvDoesNotMutateJobEnv(t *testing.T) {
	processor := WithEnv(nil)(&v1beta1.Step{Name: "step", Env: []v1beta1.EnvVar{{Name: "B", Value: stringPtr("2")}}})
	next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		return stepContext, os.WriteFile(stepContext.EnvFile, []byte("C=3\n"), 0600)
	}

	nextFunc, err := processor.Bootstrap(&mockPipeline{}, next)
	require.NoError(t, err)

	jobEnv := map[string]string{"A": "1"}
	stepContext := NewContext("job", t.TempDir())
	stepContext.Envs = jobEnv

	out, err := nextFunc(context.Background(), stepContext)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1"}, jobEnv)
	assert.Equal(t, map[string]string{"A": "1", "C": "3"}, out.Envs)
}
