package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type EventType string

const (
	EventStart   EventType = "start"
	EventSuccess EventType = "success"
	EventFailure EventType = "failure"
)

// Event is the payload every sink receives.
type Event struct {
	Type           EventType         `json:"type"`
	Pipeline       string            `json:"pipeline"`
	RunID          string            `json:"runID"`
	Branch         string            `json:"branch,omitempty"`
	Status         v1beta1.RunStatus `json:"status,omitempty"`
	PreviousStatus v1beta1.RunStatus `json:"previousStatus,omitempty"`
	Duration       string            `json:"duration,omitempty"`
	Jobs           []JobSummary      `json:"jobs,omitempty"`
}

type JobSummary struct {
	Name     string            `json:"name"`
	Axes     map[string]string `json:"axes,omitempty"`
	Status   processor.Status  `json:"status"`
	Duration string            `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

func runStatus(status processor.Status) v1beta1.RunStatus {
	if status == processor.StatusPassed {
		return v1beta1.RunStatusPassed
	}

	return v1beta1.RunStatusFailed
}

func newEvent(eventType EventType, result pipeline.PipelineResult, previous *v1beta1.PipelineRunStatus) Event {
	e := Event{
		Type:     eventType,
		Pipeline: result.Name,
		RunID:    result.RunID,
		Branch:   result.Branch,
	}

	if previous != nil {
		e.PreviousStatus = previous.Status
	}

	if eventType == EventStart {
		return e
	}

	e.Status = runStatus(result.Status)
	e.Duration = result.Duration().Round(time.Millisecond).String()

	for _, job := range result.Jobs {
		summary := JobSummary{
			Name:     job.Name,
			Axes:     job.Axes,
			Status:   job.Status,
			Duration: job.Duration().Round(time.Millisecond).String(),
		}

		if job.Error != nil {
			summary.Error = job.Error.Error()
		}

		e.Jobs = append(e.Jobs, summary)
	}

	return e
}

// Subject is a one line summary of the event.
func (e Event) Subject() string {
	name := e.Pipeline
	if e.Branch != "" {
		name = fmt.Sprintf("%s@%s", e.Pipeline, e.Branch)
	}

	switch e.Type {
	case EventStart:
		return fmt.Sprintf("[matrun] %s started (run %s)", name, e.RunID)
	default:
		return fmt.Sprintf("[matrun] %s %s in %s (run %s)", name, strings.ToLower(string(e.Status)), e.Duration, e.RunID)
	}
}

// Text renders the event as plain text.
func (e Event) Text() string {
	var b strings.Builder
	b.WriteString(e.Subject())
	b.WriteString("\n")

	if e.PreviousStatus != "" && e.Status != "" && e.PreviousStatus != e.Status {
		fmt.Fprintf(&b, "Status changed from %s to %s\n", e.PreviousStatus, e.Status)
	}

	for _, job := range e.Jobs {
		fmt.Fprintf(&b, "- %s: %s (%s)", job.Name, job.Status, job.Duration)
		if job.Error != "" {
			fmt.Fprintf(&b, ": %s", job.Error)
		}

		b.WriteString("\n")
	}

	return b.String()
}
