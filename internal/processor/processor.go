package processor

import (
	"context"
)

// Pipeline identifies the run a step chain is bootstrapped for.
type Pipeline interface {
	Name() string
	ID() string
}

type Next func(ctx context.Context, stepContext StepContext) (StepContext, error)

type Bootstraper interface {
	Bootstrap(pipeline Pipeline, next Next) (Next, error)
}
