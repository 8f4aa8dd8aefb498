package processor

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// WithSkipSteps skips every step whose name is in names.
// Skipped steps end with ErrConditionFalse and are reported as Skipped.
func WithSkipSteps(names []string) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if !slices.Contains(names, spec.Name) {
			return nil
		}

		return &SkipSteps{
			stepName: spec.Name,
		}
	}
}

type SkipSteps struct {
	stepName string
}

func (s *SkipSteps) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		logr.FromContextOrDiscard(ctx).V(1).Info("step skipped by name", "step", s.stepName)
		return stepContext, fmt.Errorf("step %s excluded: %w", s.stepName, ErrConditionFalse)
	}, nil
}
