package aop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle keeps one token bucket per operation signature
type Throttle struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewThrottle creates a throttle allowing requestsPerSecond with the given burst
func NewThrottle(requestsPerSecond float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, exists := t.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(t.rate, t.burst)
		t.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether an invocation of signature may proceed now
func (t *Throttle) Allow(signature string) bool {
	return t.limiter(signature).Allow()
}

// NewThrottleAspect creates an aspect that rejects invocations exceeding the
// throttle with ErrThrottled without running the operation
func NewThrottleAspect(order int, pointcut Pointcut, throttle *Throttle) *Aspect {
	return NewAspect("ThrottleAspect", order,
		Around("throttleInvocation", pointcut, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
			if !throttle.Allow(jp.Signature.String()) {
				return nil, fmt.Errorf("%w: %s", ErrThrottled, jp.Signature)
			}
			return proceed(ctx)
		}),
	)
}

func isThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
