package processor

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
)

// Chain bootstraps the processors so that s[0] is the outermost one.
func Chain(pipeline Pipeline, s ...Bootstraper) (Next, error) {
	if len(s) == 0 {
		return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
			return stepContext, nil
		}, nil
	}

	next, err := Chain(pipeline, s[1:]...)
	if err != nil {
		return nil, err
	}

	return s[0].Bootstrap(pipeline, next)
}

func parseVars(f io.Reader) (map[string]string, error) {
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	envMap, err := godotenv.UnmarshalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("dotenv failed: %w", err)
	}

	return envMap, nil
}
