package pipeline

import (
	"time"

	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type PhaseResult struct {
	Name   v1beta1.PhaseName      `json:"name"`
	Status processor.Status       `json:"status"`
	Steps  []processor.StepResult `json:"steps,omitempty"`
	Error  error                  `json:"-"`
}

type JobResult struct {
	Name      string            `json:"name"`
	Config    matrix.JobConfig  `json:"-"`
	Axes      map[string]string `json:"axes,omitempty"`
	Phases    []PhaseResult     `json:"phases,omitempty"`
	Status    processor.Status  `json:"status"`
	Workdir   string            `json:"workdir,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   time.Time         `json:"endedAt"`
	Error     error             `json:"-"`
}

func (r JobResult) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}

	return r.EndedAt.Sub(r.StartedAt)
}

// Steps returns every step result in execution order.
func (r JobResult) Steps() []processor.StepResult {
	var steps []processor.StepResult
	for _, phase := range r.Phases {
		steps = append(steps, phase.Steps...)
	}

	return steps
}

// Phase returns the result of the named phase, false if it was not attempted.
func (r JobResult) Phase(name v1beta1.PhaseName) (PhaseResult, bool) {
	for _, phase := range r.Phases {
		if phase.Name == name {
			return phase, true
		}
	}

	return PhaseResult{}, false
}

type PipelineResult struct {
	Name      string           `json:"name"`
	RunID     string           `json:"runID"`
	Branch    string           `json:"branch,omitempty"`
	Jobs      []JobResult      `json:"jobs"`
	Status    processor.Status `json:"status"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
}

func (r PipelineResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Passed reports whether the overall status is Passed.
func (r PipelineResult) Passed() bool {
	return r.Status == processor.StatusPassed
}

// Count returns the number of jobs with the given status.
func (r PipelineResult) Count(status processor.Status) int {
	var n int
	for _, job := range r.Jobs {
		if job.Status == status {
			n++
		}
	}

	return n
}

// aggregate is Failed if any job did not pass. Zero jobs pass.
func aggregate(jobs []JobResult) processor.Status {
	for _, job := range jobs {
		if job.Status != processor.StatusPassed {
			return processor.StatusFailed
		}
	}

	return processor.StatusPassed
}
