package main

import (
	"maps"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/raffis/matrun/internal/errdefs"
)

func environ() map[string]string {
	envs := make(map[string]string)
	for _, v := range os.Environ() {
		key, value, _ := strings.Cut(v, "=")
		envs[key] = value
	}

	return envs
}

// pipelineEnv merges the dotenv files in order followed by the --env entries.
// An entry without a value is taken from the current environment and dropped if unset.
func pipelineEnv(files []string, entries []string) (map[string]string, error) {
	envs := make(map[string]string)
	for _, file := range files {
		vars, err := godotenv.Read(file)
		if err != nil {
			return nil, errdefs.NewConfigurationError("failed to read env file %s: %s", file, err)
		}

		maps.Copy(envs, vars)
	}

	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if key == "" {
			return nil, errdefs.NewConfigurationError("invalid env `%s`, expected KEY=value", entry)
		}

		if !ok {
			env, set := os.LookupEnv(key)
			if !set {
				continue
			}

			value = env
		}

		envs[key] = value
	}

	return envs, nil
}
