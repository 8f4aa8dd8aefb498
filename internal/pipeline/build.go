package pipeline

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

type builder struct {
	logger      logr.Logger
	stepBuilder StepBuilder
}

type builderOption func(*builder)

// StepBuilder returns the processors of a step, outermost first.
type StepBuilder func(spec v1beta1.Step) []processor.Bootstraper

func WithLogger(logger logr.Logger) builderOption {
	return func(s *builder) {
		s.logger = logger
	}
}

func WithStepBuilder(stepBuilder StepBuilder) builderOption {
	return func(s *builder) {
		s.stepBuilder = stepBuilder
	}
}

func NewBuilder(opts ...builderOption) *builder {
	e := &builder{
		logger: logr.Discard(),
	}

	for _, o := range opts {
		o(e)
	}

	return e
}

// Build compiles the processor chain of every step.
func (e *builder) Build(spec v1beta1.Pipeline, runID string) (*pipeline, error) {
	if e.stepBuilder == nil {
		return nil, fmt.Errorf("no step builder configured")
	}

	spec.SetDefaults()
	p := &pipeline{
		name: spec.Name,
		id:   runID,
	}

	for _, phase := range spec.Spec.Phases.All() {
		compiled, err := e.buildPhase(p, phase)
		if err != nil {
			return nil, err
		}

		if phase.Name == v1beta1.PhaseAfterScript {
			p.afterScript = compiled
			continue
		}

		p.phases = append(p.phases, compiled)
	}

	e.logger.V(1).Info("pipeline compiled", "pipeline", p.name, "id", p.id, "steps", p.Steps())
	return p, nil
}

func (e *builder) buildPhase(p *pipeline, phase v1beta1.Phase) (*pipelinePhase, error) {
	compiled := &pipelinePhase{
		name: phase.Name,
	}

	names := make(map[string]struct{}, len(phase.Steps))
	for _, spec := range phase.Steps {
		if err := validateStep(phase.Name, spec); err != nil {
			return nil, err
		}

		if _, ok := names[spec.Name]; ok {
			return nil, errdefs.NewConfigurationError("duplicate step `%s` in phase %s", spec.Name, phase.Name)
		}

		names[spec.Name] = struct{}{}

		entrypoint, err := processor.Chain(p, e.stepBuilder(spec)...)
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap step `%s`: %w", spec.Name, err)
		}

		compiled.steps = append(compiled.steps, &pipelineStep{
			name:       spec.Name,
			entrypoint: entrypoint,
		})
	}

	return compiled, nil
}

func validateStep(phase v1beta1.PhaseName, spec v1beta1.Step) error {
	switch {
	case spec.Run == "" && len(spec.Command) == 0:
		return errdefs.NewConfigurationError("step `%s` in phase %s has neither run nor command", spec.Name, phase)
	case spec.Run != "" && len(spec.Command) > 0:
		return errdefs.NewConfigurationError("step `%s` in phase %s has both run and command", spec.Name, phase)
	case spec.Timeout.Duration < 0:
		return errdefs.NewConfigurationError("step `%s` in phase %s has a negative timeout", spec.Name, phase)
	case spec.Retry != nil && (spec.Retry.Constant.Duration < 0 || spec.Retry.Exponential.Duration < 0):
		return errdefs.NewConfigurationError("step `%s` in phase %s has a negative retry delay", spec.Name, phase)
	}

	return nil
}
