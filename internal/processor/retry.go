package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

func WithRetry() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.Retry == nil {
			return nil
		}

		max := spec.Retry.MaxRetries
		if max <= 0 {
			max = defaultMaxRetries
		}

		return &Retry{
			max:         uint64(max),
			exponential: spec.Retry.Exponential.Duration,
			constant:    spec.Retry.Constant.Duration,
		}
	}
}

// Retry reruns failed attempts. Errored attempts and cancellations are not retried.
// Every attempt starts with an empty env file so only the last attempt's delta reaches the job.
type Retry struct {
	max         uint64
	exponential time.Duration
	constant    time.Duration
}

func (s *Retry) backoff() retry.Backoff {
	var backoff retry.Backoff
	switch {
	case s.exponential > 0:
		backoff = retry.NewExponential(s.exponential)
	case s.constant > 0:
		backoff = retry.NewConstant(s.constant)
	default:
		backoff = retry.NewConstant(defaultRetryDelay)
	}

	return retry.WithMaxRetries(s.max, backoff)
}

func (s *Retry) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		out := stepContext
		var err error
		attempt := 0

		retryErr := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
			if attempt > 0 && stepContext.EnvFile != "" {
				if err = os.Truncate(stepContext.EnvFile, 0); err != nil {
					err = fmt.Errorf("%w: failed to reset env file: %w", errdefs.ErrSpawn, err)
					return err
				}
			}

			attempt++
			out, err = next(ctx, stepContext)
			if err != nil && errdefs.IsFailure(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}

			return err
		})

		if err == nil && retryErr != nil {
			err = retryErr
		}

		return out, err
	}, nil
}
