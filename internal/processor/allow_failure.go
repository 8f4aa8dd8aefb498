package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

func WithAllowFailure() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if !spec.ContinueOnError {
			return nil
		}

		return &AllowFailure{}
	}
}

// AllowFailure tolerates failed and timed out steps.
// Errored steps still abort the phase.
type AllowFailure struct {
}

var ErrAllowFailure = errors.New("ignore error returned from step")

func (s *AllowFailure) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		stepContext, err := next(ctx, stepContext)

		if errdefs.IsFailure(err) {
			err = fmt.Errorf("%w: %w", ErrAllowFailure, err)
		}

		return stepContext, err
	}, nil
}
