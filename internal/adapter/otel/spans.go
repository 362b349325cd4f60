package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tenantforge"

// StartProvisionSpan starts a span for one tenant provisioning command.
func StartProvisionSpan(ctx context.Context, registrationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provision",
		trace.WithAttributes(
			attribute.String("registration.id", registrationID),
		),
	)
}

// StartStepSpan starts a span for a saga step of a tenant.
func StartStepSpan(ctx context.Context, step, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step."+step,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("step", step),
		),
	)
}

// StartJobSpan starts a span for one background job delivery.
func StartJobSpan(ctx context.Context, kind, tenantID string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job."+kind,
		trace.WithAttributes(
			attribute.String("job.kind", kind),
			attribute.String("tenant.id", tenantID),
			attribute.Int("job.attempt", attempt),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
