package pipeline

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/processor"
)

// PhaseRunner runs the steps of a phase in order.
type PhaseRunner struct {
	phase *pipelinePhase
}

// Run returns the ordered step results, the phase status and the context
// carrying the environment deltas of all executed steps.
// A phase ends Failed or Errored at the first step which does not tolerate its error.
func (r *PhaseRunner) Run(ctx context.Context, stepContext processor.StepContext) (PhaseResult, processor.StepContext) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("phase", r.phase.name)
	result := PhaseResult{
		Name:   r.phase.name,
		Status: processor.StatusPassed,
	}

	stepContext.Phase = r.phase.name
	for _, step := range r.phase.steps {
		if ctx.Err() != nil {
			result.Status = processor.StatusErrored
			result.Error = NewErrAborted(ctx)
			return result, stepContext
		}

		out, err := step.entrypoint(ctx, stepContext)
		stepResult := out.Result
		if stepResult == nil {
			stepResult = &processor.StepResult{
				Name:    step.name,
				Phase:   r.phase.name,
				EndedAt: time.Now(),
				Status:  processor.Classify(err),
				Error:   err,
			}
		}

		result.Steps = append(result.Steps, *stepResult)
		out.Result = nil
		stepContext = out

		if !processor.AbortOnError(err) {
			continue
		}

		switch {
		case ctx.Err() != nil:
			result.Status = processor.StatusErrored
			result.Error = NewErrAborted(ctx)
		case stepResult.Status == processor.StatusFailed:
			result.Status = processor.StatusFailed
			result.Error = err
		default:
			result.Status = processor.StatusErrored
			result.Error = err
		}

		logger.V(1).Info("phase stopped", "step", step.name, "status", result.Status, "error", result.Error)
		return result, stepContext
	}

	return result, stepContext
}
