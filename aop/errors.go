package aop

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchOperation is returned when a proxy has no operation with the requested name
	ErrNoSuchOperation = errors.New("aop: no such operation")

	// ErrThrottled is returned by the throttling advice when the rate limit is exceeded
	ErrThrottled = errors.New("aop: invocation throttled")

	// ErrInvalidTarget is returned when a target cannot be woven
	ErrInvalidTarget = errors.New("aop: invalid target")

	// ErrInvalidAspect is returned when an aspect cannot be registered
	ErrInvalidAspect = errors.New("aop: invalid aspect")
)

// AdviceError wraps an error returned by an advice. The remaining advices of
// the invocation are skipped once an advice fails.
type AdviceError struct {
	Aspect    string
	Advice    string
	Phase     Phase
	Signature Signature
	Err       error
}

func (e *AdviceError) Error() string {
	return fmt.Sprintf("aop: %s advice %s.%s failed at %s: %v", e.Phase, e.Aspect, e.Advice, e.Signature, e.Err)
}

func (e *AdviceError) Unwrap() error {
	return e.Err
}

// IsAdviceError checks if an error was raised by an advice
func IsAdviceError(err error) bool {
	var adviceErr *AdviceError
	return errors.As(err, &adviceErr)
}
