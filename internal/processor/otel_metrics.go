package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WithOtelMetrics records a run counter and a duration histogram per step.
func WithOtelMetrics(meter metric.Meter) (ProcessorBuilder, error) {
	if meter == nil {
		return func(spec *v1beta1.Step) Bootstraper {
			return nil
		}, nil
	}

	runs, err := meter.Int64Counter("matrun.step.runs",
		metric.WithDescription("Number of executed steps by status"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create step counter: %w", err)
	}

	duration, err := meter.Float64Histogram("matrun.step.duration",
		metric.WithDescription("Duration of steps"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	return func(spec *v1beta1.Step) Bootstraper {
		return &OtelMetrics{
			stepName: spec.Name,
			runs:     runs,
			duration: duration,
		}
	}, nil
}

type OtelMetrics struct {
	stepName string
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func (s *OtelMetrics) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		startedAt := time.Now()
		stepContext, err := next(ctx, stepContext)

		attrs := metric.WithAttributes(
			attribute.String("matrun.pipeline", pipeline.Name()),
			attribute.String("matrun.job", stepContext.Job),
			attribute.String("matrun.phase", string(stepContext.Phase)),
			attribute.String("matrun.step", s.stepName),
			attribute.String("matrun.status", string(Classify(err))),
		)

		s.runs.Add(ctx, 1, attrs)
		s.duration.Record(ctx, time.Since(startedAt).Seconds(), attrs)

		return stepContext, err
	}, nil
}
