package pipeline

import (
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// pipeline is a compiled pipeline definition. It is shared read-only by all jobs.
type pipeline struct {
	name        string
	id          string
	phases      []*pipelinePhase
	afterScript *pipelinePhase
}

type pipelinePhase struct {
	name  v1beta1.PhaseName
	steps []*pipelineStep
}

type pipelineStep struct {
	name       string
	entrypoint processor.Next
}

func (p *pipeline) Name() string {
	return p.name
}

func (p *pipeline) ID() string {
	return p.id
}

// Steps returns the number of compiled steps including after_script.
func (p *pipeline) Steps() int {
	n := len(p.afterScript.steps)
	for _, phase := range p.phases {
		n += len(phase.steps)
	}

	return n
}
