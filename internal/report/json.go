package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type jsonStep struct {
	processor.StepResult
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type jsonPhase struct {
	Name   v1beta1.PhaseName `json:"name"`
	Status processor.Status  `json:"status"`
	Steps  []jsonStep        `json:"steps,omitempty"`
}

type jsonJob struct {
	pipeline.JobResult
	Phases   []jsonPhase `json:"phases,omitempty"`
	Duration string      `json:"duration"`
	Error    string      `json:"error,omitempty"`
}

type jsonReport struct {
	pipeline.PipelineResult
	Jobs     []jsonJob `json:"jobs"`
	Duration string    `json:"duration"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

// JSON writes the full result including the captured step output.
func JSON(w io.Writer, result pipeline.PipelineResult) error {
	report := jsonReport{
		PipelineResult: result,
		Jobs:           []jsonJob{},
		Duration:       result.Duration().String(),
	}

	for _, job := range result.Jobs {
		j := jsonJob{
			JobResult: job,
			Duration:  job.Duration().Round(time.Millisecond).String(),
			Error:     errString(job.Error),
		}

		for _, phase := range job.Phases {
			p := jsonPhase{
				Name:   phase.Name,
				Status: phase.Status,
			}

			for _, step := range phase.Steps {
				p.Steps = append(p.Steps, jsonStep{
					StepResult: step,
					Duration:   step.Duration().Round(time.Millisecond).String(),
					Error:      errString(step.Error),
				})
			}

			j.Phases = append(j.Phases, p)
		}

		report.Jobs = append(report.Jobs, j)
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
