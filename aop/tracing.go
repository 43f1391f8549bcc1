package aop

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewTracingAspect creates an aspect that records one span per invocation
func NewTracingAspect(order int, pointcut Pointcut, tracer trace.Tracer) *Aspect {
	return NewAspect("TracingAspect", order,
		Around("traceInvocation", pointcut, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
			spanCtx, span := tracer.Start(ctx, jp.Signature.String(),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("aop.joinpoint.id", jp.ID),
					attribute.String("aop.declaring_type", jp.Signature.DeclaringType),
					attribute.String("aop.method", jp.Signature.Name),
					attribute.Int("aop.args", len(jp.Args)),
				),
			)
			defer span.End()

			result, err := proceed(spanCtx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return result, err
		}),
	)
}
