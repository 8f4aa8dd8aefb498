package processor

import (
	"context"
	"fmt"
	"maps"
	"os"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// WithEnv adds the step environment and the env file to every step.
// Env vars declared without a value are taken from osEnv.
func WithEnv(osEnv map[string]string) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		return &Env{
			stepName: spec.Name,
			stepEnv:  envMap(spec.Env, osEnv),
		}
	}
}

type Env struct {
	stepName string
	stepEnv  map[string]string
}

func (s *Env) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		envTmp, err := os.CreateTemp(stepContext.TmpDir, "env-*")
		if err != nil {
			return stepContext, fmt.Errorf("%w: failed to create env file: %w", errdefs.ErrSpawn, err)
		}

		defer func() {
			_ = envTmp.Close()
			_ = os.Remove(envTmp.Name())
		}()

		jobEnvs := stepContext.Envs
		stepEnvs := make(map[string]string, len(jobEnvs)+len(s.stepEnv)+1)
		maps.Copy(stepEnvs, jobEnvs)
		maps.Copy(stepEnvs, s.stepEnv)
		stepEnvs[EnvFileVar] = envTmp.Name()

		stepContext.Envs = stepEnvs
		stepContext.EnvFile = envTmp.Name()
		stepContext, nextErr := next(ctx, stepContext)

		// the step env and the env file never leak into the job environment
		stepContext.Envs = maps.Clone(jobEnvs)
		stepContext.EnvFile = ""

		delta, err := parseVars(envTmp)
		if err != nil {
			if nextErr == nil {
				nextErr = fmt.Errorf("failed to parse env file of step %s: %w", s.stepName, err)
			}

			return stepContext, nextErr
		}

		delete(delta, EnvFileVar)
		if stepContext.Envs == nil {
			stepContext.Envs = make(map[string]string, len(delta))
		}

		maps.Copy(stepContext.Envs, delta)
		if stepContext.Result != nil && len(delta) > 0 {
			stepContext.Result.EnvDelta = delta
		}

		return stepContext, nextErr
	}, nil
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
