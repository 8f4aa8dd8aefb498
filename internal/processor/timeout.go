package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// WithTimeout bounds a step by its own timeout or defaultTimeout if it has none.
func WithTimeout(defaultTimeout time.Duration) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		timeout := spec.Timeout.Duration
		if timeout == 0 {
			timeout = defaultTimeout
		}

		if timeout <= 0 {
			return nil
		}

		return &Timeout{
			timeout: timeout,
		}
	}
}

type Timeout struct {
	timeout time.Duration
}

func (s *Timeout) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		stepContext, err := next(stepCtx, stepContext)
		if err == nil || ctx.Err() != nil || !errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return stepContext, err
		}

		if stepContext.Result != nil {
			stepContext.Result.TimedOut = true
		}

		return stepContext, fmt.Errorf("%w: step exceeded %s: %w", errdefs.ErrTimeout, s.timeout, err)
	}, nil
}
