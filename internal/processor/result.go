package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type Status string

const (
	StatusPassed  Status = "Passed"
	StatusFailed  Status = "Failed"
	StatusErrored Status = "Errored"
	StatusSkipped Status = "Skipped"
)

type StepResult struct {
	Name             string            `json:"name"`
	Phase            v1beta1.PhaseName `json:"phase"`
	Status           Status            `json:"status"`
	ExitCode         int               `json:"exitCode"`
	Stdout           string            `json:"stdout,omitempty"`
	Stderr           string            `json:"stderr,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	EndedAt          time.Time         `json:"endedAt"`
	TimedOut         bool              `json:"timedOut,omitempty"`
	Skipped          bool              `json:"skipped,omitempty"`
	ContinuedOnError bool              `json:"continuedOnError,omitempty"`
	EnvDelta         map[string]string `json:"envDelta,omitempty"`
	Attempts         int               `json:"attempts"`
	Error            error             `json:"-"`
}

func (t *StepResult) Duration() time.Duration {
	return t.EndedAt.Sub(t.StartedAt)
}

// Classify maps a step error to its status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusPassed
	case errors.Is(err, ErrConditionFalse):
		return StatusSkipped
	case errdefs.IsFailure(err):
		return StatusFailed
	default:
		return StatusErrored
	}
}

func WithResult() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		return &Result{
			stepName: spec.Name,
		}
	}
}

// Result records the StepResult of a step and exposes it through StepContext.Result.
type Result struct {
	stepName string
}

func (s *Result) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		result := &StepResult{
			Name:      s.stepName,
			Phase:     stepContext.Phase,
			StartedAt: time.Now(),
		}

		stepContext.Result = result
		out, nextErr := next(ctx, stepContext)
		result.EndedAt = time.Now()
		result.Error = nextErr
		result.Status = Classify(nextErr)
		result.Skipped = result.Status == StatusSkipped
		result.TimedOut = result.TimedOut || errors.Is(nextErr, errdefs.ErrTimeout)
		result.ContinuedOnError = result.Status == StatusFailed && errors.Is(nextErr, ErrAllowFailure)

		out.Result = result

		if nextErr != nil && result.Status != StatusSkipped {
			nextErr = fmt.Errorf("step %s failed: %w", s.stepName, nextErr)
		}

		return out, nextErr
	}, nil
}
