package processor

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

func WithLogger(defaultLogger logr.Logger) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		return &Logger{
			stepName: spec.Name,
			logger:   defaultLogger,
		}
	}
}

// Logger attaches a step scoped logger to the context.
type Logger struct {
	stepName string
	logger   logr.Logger
}

func (s *Logger) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		logger, err := logr.FromContext(ctx)
		if err != nil {
			logger = s.logger
		}

		logger = logger.WithValues("job", stepContext.Job, "phase", stepContext.Phase, "step", s.stepName)
		ctx = logr.NewContext(ctx, logger)

		logger.V(1).Info("step started")
		stepContext, err = next(ctx, stepContext)

		status := Classify(err)
		switch status {
		case StatusPassed, StatusSkipped:
			logger.V(1).Info("step done", "status", status)
		default:
			logger.V(1).Info("step done", "status", status, "error", err.Error())
		}

		return stepContext, err
	}, nil
}
