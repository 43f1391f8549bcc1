package aop

import (
	"context"
	"time"
)

// MetricsCollector defines the interface for collecting invocation metrics
type MetricsCollector interface {
	IncrementInvocationCount(signature string)
	RecordExecutionTime(signature string, duration time.Duration)
	IncrementErrorCount(signature string, errorType string)
}

// NewMetricsAspect creates an aspect that records invocation counts,
// execution time and failures of the matching operations
func NewMetricsAspect(order int, pointcut Pointcut, collector MetricsCollector) *Aspect {
	return NewAspect("MetricsAspect", order,
		Around("recordInvocation", pointcut, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
			signature := jp.Signature.String()
			start := time.Now()

			collector.IncrementInvocationCount(signature)

			result, err := proceed(ctx)
			collector.RecordExecutionTime(signature, time.Since(start))

			if err != nil {
				collector.IncrementErrorCount(signature, errorType(err))
			}

			return result, err
		}),
	)
}

func errorType(err error) string {
	switch {
	case IsAdviceError(err):
		return "advice_error"
	case isThrottled(err):
		return "throttled"
	default:
		return "operation_error"
	}
}
