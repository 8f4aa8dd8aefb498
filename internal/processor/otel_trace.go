package processor

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func WithOtelTrace(tracer trace.Tracer) ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if tracer == nil {
			return nil
		}

		return &OtelTrace{
			stepName: spec.Name,
			tracer:   tracer,
		}
	}
}

type OtelTrace struct {
	stepName string
	tracer   trace.Tracer
}

func (s *OtelTrace) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		ctx, span := s.tracer.Start(ctx, s.stepName, trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		span.SetAttributes(
			attribute.String("matrun.run_id", pipeline.ID()),
			attribute.String("matrun.pipeline", pipeline.Name()),
			attribute.String("matrun.job", stepContext.Job),
			attribute.String("matrun.phase", string(stepContext.Phase)),
			attribute.String("matrun.step", s.stepName),
		)

		ctx = logr.NewContext(ctx, logr.FromContextOrDiscard(ctx).WithValues(
			"span-id", span.SpanContext().SpanID(),
			"trace-id", span.SpanContext().TraceID()),
		)

		stepContext, err := next(ctx, stepContext)
		status := Classify(err)
		span.SetAttributes(attribute.String("matrun.status", string(status)))

		switch status {
		case StatusFailed, StatusErrored:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Ok, "")
		}

		return stepContext, err
	}, nil
}
