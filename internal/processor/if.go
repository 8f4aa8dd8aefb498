package processor

import (
	"context"
	"errors"

	"github.com/raffis/matrun/internal/condition"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

func WithIf(evaluator *condition.Evaluator) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.If == "" {
			return nil
		}

		return &If{
			condition: spec.If,
			evaluator: evaluator,
		}
	}
}

type If struct {
	condition string
	evaluator *condition.Evaluator
}

var ErrConditionFalse = errors.New("conditional step skipped")

func (s *If) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		ok, err := s.evaluator.Eval(s.condition, stepContext.Scope())
		if err != nil {
			return stepContext, err
		}

		// the guarded command is never invoked if the expression is false
		if !ok {
			return stepContext, ErrConditionFalse
		}

		return next(ctx, stepContext)
	}, nil
}
